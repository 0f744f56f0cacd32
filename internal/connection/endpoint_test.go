package connection

import (
	"errors"
	"testing"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

func svc(typ, href string) map[string]any {
	return map[string]any{"type": typ, "href": href}
}

func TestControlBase(t *testing.T) {
	tests := []struct {
		name   string
		node   resource.Resource
		device resource.Resource
		want   string
	}{
		{
			name: "node service",
			node: resource.Resource{"id": "n1", "services": []any{svc(ServiceTypeConnection, "http://h/conn/v1.1")}},
			want: "http://h/conn/v1.1",
		},
		{
			name: "newer version preferred regardless of order",
			node: resource.Resource{"id": "n1", "services": []any{
				svc(ServiceTypeConnection, "http://h/x-nmos/connection/v1.0/"),
				svc(ServiceTypeConnection, "http://h/x-nmos/connection/v1.1/"),
			}},
			want: "http://h/x-nmos/connection/v1.1",
		},
		{
			name: "older version used when it is all there is",
			node: resource.Resource{"id": "n1", "services": []any{
				svc("urn:x-nmos:service:events", "http://h/events"),
				svc(ServiceTypeConnection, "http://h/x-nmos/connection/v1.0"),
			}},
			want: "http://h/x-nmos/connection/v1.0",
		},
		{
			name: "api endpoints",
			node: resource.Resource{"id": "n1", "api": map[string]any{
				"endpoints": []any{svc(ServiceTypeConnection, "http://h/conn/v1.1")},
			}},
			want: "http://h/conn/v1.1",
		},
		{
			name:   "device sr-ctrl control",
			node:   resource.Resource{"id": "n1", "href": "http://node/"},
			device: resource.Resource{"id": "d1", "controls": []any{svc(ControlTypePrefix+"v1.1", "http://dev/x-nmos/connection/v1.1/")}},
			want:   "http://dev/x-nmos/connection/v1.1",
		},
		{
			name: "fallback to node href",
			node: resource.Resource{"id": "n1", "href": "http://node:8080/"},
			want: "http://node:8080/x-nmos/connection/v1.1",
		},
		{
			name: "malformed entries ignored",
			node: resource.Resource{"id": "n1", "href": "http://node", "services": []any{"bogus", svc(ServiceTypeConnection, "")}},
			want: "http://node/x-nmos/connection/v1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := controlBase(tt.node, tt.device)
			if err != nil {
				t.Fatalf("controlBase() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("controlBase() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestControlBase_NoEndpoint(t *testing.T) {
	_, err := controlBase(resource.Resource{"id": "n1"}, nil)
	if !errors.Is(err, nmos.ErrNotFound) {
		t.Errorf("controlBase() error = %v, want ErrNotFound", err)
	}
}

func TestOwningNode(t *testing.T) {
	store := resource.NewStore()
	store.Replace(resource.Snapshot{
		Nodes: []resource.Resource{{"id": "n1"}},
		Devices: []resource.Resource{
			{"id": "d1", "node_id": "n1"},
			{"id": "d-orphan", "node_id": "n-missing"},
			{"id": "d-blank", "node_id": ""},
		},
	})

	tests := []struct {
		name    string
		r       resource.Resource
		wantErr error
	}{
		{"direct node_id", resource.Resource{"id": "r1", "node_id": "n1"}, nil},
		{"via device", resource.Resource{"id": "r1", "device_id": "d1"}, nil},
		{"empty node_id", resource.Resource{"id": "r1", "node_id": ""}, nmos.ErrInvalidResource},
		{"non-string node_id", resource.Resource{"id": "r1", "node_id": 7.0}, nmos.ErrInvalidResource},
		{"no relationship", resource.Resource{"id": "r1"}, nmos.ErrInvalidResource},
		{"empty device_id", resource.Resource{"id": "r1", "device_id": ""}, nmos.ErrInvalidResource},
		{"unknown node", resource.Resource{"id": "r1", "node_id": "n9"}, nmos.ErrNotFound},
		{"unknown device", resource.Resource{"id": "r1", "device_id": "d9"}, nmos.ErrNotFound},
		{"device node missing", resource.Resource{"id": "r1", "device_id": "d-orphan"}, nmos.ErrNotFound},
		{"device node blank", resource.Resource{"id": "r1", "device_id": "d-blank"}, nmos.ErrInvalidResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, _, err := owningNode(store, "receiver", tt.r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("owningNode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("owningNode() error = %v", err)
			}
			if node.ID() != "n1" {
				t.Errorf("node = %q, want n1", node.ID())
			}
		})
	}
}
