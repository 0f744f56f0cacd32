package connection

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// Service and control types advertised for the Connection API.
const (
	ServiceTypeConnection = "urn:x-nmos:service:connection"
	ControlTypePrefix     = "urn:x-nmos:control:sr-ctrl/"

	// DefaultConnectionPath is appended to a node's href when it
	// advertises no Connection API.
	DefaultConnectionPath = "/x-nmos/connection/v1.1"
)

var versionSuffix = regexp.MustCompile(`/?v(\d+)\.(\d+)/?$`)

// owningNode resolves the node that hosts r. A present node_id wins;
// otherwise the device_id is followed to its node.
//
// Returns:
//   - resource.Resource: The node record
//   - resource.Resource: The device record when the device was consulted, else nil
//   - error: nmos.ErrInvalidResource for an unusable relationship,
//     nmos.ErrNotFound for a referenced record missing from the store
func owningNode(store resource.Reader, kind string, r resource.Resource) (resource.Resource, resource.Resource, error) {
	nodeID, state := r.Relation(resource.FieldNodeID)
	switch state {
	case resource.RelationPresent:
		node, ok := store.Get(resource.Nodes, nodeID)
		if !ok {
			return nil, nil, fmt.Errorf("%w: node %s for %s %s", nmos.ErrNotFound, nodeID, kind, r.ID())
		}
		device, _ := store.Get(resource.Devices, r.DeviceID())
		return node, device, nil
	case resource.RelationEmpty:
		return nil, nil, fmt.Errorf("%w: %s %s has an empty node_id", nmos.ErrInvalidResource, kind, r.ID())
	}

	deviceID, state := r.Relation(resource.FieldDeviceID)
	if state != resource.RelationPresent {
		return nil, nil, fmt.Errorf("%w: %s %s has neither node_id nor device_id", nmos.ErrInvalidResource, kind, r.ID())
	}
	device, ok := store.Get(resource.Devices, deviceID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: device %s for %s %s", nmos.ErrNotFound, deviceID, kind, r.ID())
	}
	nodeID, state = device.Relation(resource.FieldNodeID)
	if state != resource.RelationPresent {
		return nil, nil, fmt.Errorf("%w: device %s of %s %s has no node_id", nmos.ErrInvalidResource, deviceID, kind, r.ID())
	}
	node, ok := store.Get(resource.Nodes, nodeID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: node %s for %s %s", nmos.ErrNotFound, nodeID, kind, r.ID())
	}
	return node, device, nil
}

type endpoint struct {
	href         string
	major, minor int
}

func (e endpoint) newer(o endpoint) bool {
	if e.major != o.major {
		return e.major > o.major
	}
	return e.minor > o.minor
}

// controlBase returns the Connection API base for a resource hosted by
// node (and device, when known). Advertised endpoints are preferred, the
// newest version first; otherwise DefaultConnectionPath is appended to the
// node href.
func controlBase(node, device resource.Resource) (string, error) {
	var best *endpoint
	consider := func(href, typ string) {
		href = strings.TrimRight(strings.TrimSpace(href), "/")
		if href == "" {
			return
		}
		var ep endpoint
		switch {
		case typ == ServiceTypeConnection:
			ep = endpoint{href: href, major: -1, minor: -1}
			if m := versionSuffix.FindStringSubmatch(href); m != nil {
				ep.major, _ = strconv.Atoi(m[1])
				ep.minor, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(typ, ControlTypePrefix):
			ep = endpoint{href: href, major: -1, minor: -1}
			if m := versionSuffix.FindStringSubmatch("/" + strings.TrimPrefix(typ, ControlTypePrefix)); m != nil {
				ep.major, _ = strconv.Atoi(m[1])
				ep.minor, _ = strconv.Atoi(m[2])
			}
		default:
			return
		}
		if best == nil || ep.newer(*best) {
			best = &ep
		}
	}

	for _, svc := range typedEntries(node["services"]) {
		consider(svc["href"], svc["type"])
	}
	if api, ok := node["api"].(map[string]any); ok {
		for _, ep := range typedEntries(api["endpoints"]) {
			consider(ep["href"], ep["type"])
		}
	}
	if device != nil {
		for _, ctl := range typedEntries(device["controls"]) {
			consider(ctl["href"], ctl["type"])
		}
	}
	if best != nil {
		return best.href, nil
	}

	href, _ := node["href"].(string)
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if href == "" {
		return "", fmt.Errorf("%w: node %s advertises no connection endpoint", nmos.ErrNotFound, node.ID())
	}
	if _, err := url.Parse(href); err != nil {
		return "", fmt.Errorf("%w: node %s href %q: %w", nmos.ErrInvalidResource, node.ID(), href, err)
	}
	return href + DefaultConnectionPath, nil
}

// typedEntries extracts the string href and type of each object in v.
func typedEntries(v any) []map[string]string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]string, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		href, _ := obj["href"].(string)
		typ, _ := obj["type"].(string)
		out = append(out, map[string]string{"href": href, "type": typ})
	}
	return out
}
