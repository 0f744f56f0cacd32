package registration

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// Resource types accepted by the Registration API.
const (
	TypeNode   = "node"
	TypeDevice = "device"
)

// Device and control types advertised for this service.
const (
	DeviceTypeControl = "urn:x-nmos:device:control"
	ControlTypeSRCtrl = "urn:x-nmos:control:sr-ctrl/v1.1"
)

// APIVersion is the IS-04 version this service advertises.
const APIVersion = "v1.3"

// payload is the Registration API request body.
type payload struct {
	Type string            `json:"type"`
	Data resource.Resource `json:"data"`
}

// version formats t as an NMOS "<seconds>:<nanoseconds>" version string.
func version(t time.Time) string {
	return fmt.Sprintf("%d:%d", t.Unix(), t.Nanosecond())
}

// nodeResource builds the Node document registered for this service.
func (s *Service) nodeResource(now time.Time) resource.Resource {
	return resource.Resource{
		"id":          s.nodeID,
		"version":     version(now),
		"label":       s.label + " Node",
		"description": "Vega NMOS control-plane node",
		"tags":        map[string]any{},
		"hostname":    s.hostname,
		"href":        s.href,
		"caps":        map[string]any{},
		"api": map[string]any{
			"versions":  []any{APIVersion},
			"endpoints": s.endpoints(),
		},
		"services":   []any{},
		"clocks":     []any{},
		"interfaces": []any{},
	}
}

// deviceResource builds the control Device registered under the Node.
func (s *Service) deviceResource(now time.Time) resource.Resource {
	return resource.Resource{
		"id":          s.deviceID,
		"version":     version(now),
		"label":       s.label + " Controller",
		"description": "Vega NMOS connection controller",
		"tags":        map[string]any{},
		"node_id":     s.nodeID,
		"type":        DeviceTypeControl,
		"senders":     []any{},
		"receivers":   []any{},
		"controls": []any{
			map[string]any{
				"href": s.controlHref,
				"type": ControlTypeSRCtrl,
			},
		},
	}
}

// endpoints derives the api.endpoints entry from the node href.
func (s *Service) endpoints() []any {
	u, err := url.Parse(s.href)
	if err != nil || u.Hostname() == "" {
		return []any{}
	}
	host, portStr := u.Hostname(), u.Port()
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	return []any{
		map[string]any{
			"host":     host,
			"port":     port,
			"protocol": u.Scheme,
		},
	}
}
