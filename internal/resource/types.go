package resource

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Collection names one of the five NMOS resource types.
type Collection string

// Resource collections, in the order they are bootstrapped.
const (
	Nodes     Collection = "nodes"
	Devices   Collection = "devices"
	Senders   Collection = "senders"
	Receivers Collection = "receivers"
	Flows     Collection = "flows"
)

// Collections returns every collection in bootstrap order.
func Collections() []Collection {
	return []Collection{Nodes, Devices, Senders, Receivers, Flows}
}

// Path returns the registry resource path, e.g. "/nodes".
func (c Collection) Path() string {
	return "/" + string(c)
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case Nodes, Devices, Senders, Receivers, Flows:
		return true
	}
	return false
}

// ParseCollection accepts "senders", "/senders" or "/senders/".
func ParseCollection(s string) (Collection, error) {
	c := Collection(strings.Trim(strings.TrimSpace(s), "/"))
	if !c.Valid() {
		return "", fmt.Errorf("resource: unknown collection %q", s)
	}
	return c, nil
}

// RelationState describes how a relationship field is present on a record.
type RelationState int

const (
	// RelationAbsent means the field is missing or null.
	RelationAbsent RelationState = iota
	// RelationEmpty means the field is present but an empty string or not a string.
	RelationEmpty
	// RelationPresent means the field holds a non-empty id.
	RelationPresent
)

// Relationship field names.
const (
	FieldNodeID   = "node_id"
	FieldDeviceID = "device_id"
	FieldFlowID   = "flow_id"
)

// Resource is one registry record. It is treated as an opaque value except
// for the accessors below.
type Resource map[string]any

// ID returns the record's id, or "" when missing.
func (r Resource) ID() string {
	return r.str("id")
}

// Version returns the record's version marker ("<seconds>:<nanoseconds>").
func (r Resource) Version() string {
	return r.str("version")
}

// Label returns the record's label.
func (r Resource) Label() string {
	return r.str("label")
}

// Relation reports the value and state of a relationship field such as
// node_id. An absent field and an empty one are distinct states.
func (r Resource) Relation(field string) (string, RelationState) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", RelationAbsent
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", RelationEmpty
	}
	return s, RelationPresent
}

// NodeID returns the node_id relationship, or "".
func (r Resource) NodeID() string {
	id, _ := r.Relation(FieldNodeID)
	return id
}

// DeviceID returns the device_id relationship, or "".
func (r Resource) DeviceID() string {
	id, _ := r.Relation(FieldDeviceID)
	return id
}

// FlowID returns the flow_id relationship, or "".
func (r Resource) FlowID() string {
	id, _ := r.Relation(FieldFlowID)
	return id
}

// Clone returns a deep copy of r.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	return cloneValue(map[string]any(r)).(map[string]any)
}

func (r Resource) str(key string) string {
	s, _ := r[key].(string)
	return s
}

// cloneValue deep-copies values produced by encoding/json.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Resource:
		return Resource(cloneValue(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// Decode parses a JSON array of records.
func Decode(data []byte) ([]Resource, error) {
	var out []Resource
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot is a point-in-time copy of all five collections.
type Snapshot struct {
	Nodes     []Resource `json:"nodes" yaml:"nodes"`
	Devices   []Resource `json:"devices" yaml:"devices"`
	Senders   []Resource `json:"senders" yaml:"senders"`
	Receivers []Resource `json:"receivers" yaml:"receivers"`
	Flows     []Resource `json:"flows" yaml:"flows"`
}

// Get returns the slice for c.
func (s *Snapshot) Get(c Collection) []Resource {
	switch c {
	case Nodes:
		return s.Nodes
	case Devices:
		return s.Devices
	case Senders:
		return s.Senders
	case Receivers:
		return s.Receivers
	case Flows:
		return s.Flows
	}
	return nil
}

// Set replaces the slice for c. Unknown collections are ignored.
func (s *Snapshot) Set(c Collection, list []Resource) {
	switch c {
	case Nodes:
		s.Nodes = list
	case Devices:
		s.Devices = list
	case Senders:
		s.Senders = list
	case Receivers:
		s.Receivers = list
	case Flows:
		s.Flows = list
	}
}

// Counts returns the number of records per collection.
func (s *Snapshot) Counts() map[Collection]int {
	out := make(map[Collection]int, 5)
	for _, c := range Collections() {
		out[c] = len(s.Get(c))
	}
	return out
}

// Find returns the record with id in c.
func (s *Snapshot) Find(c Collection, id string) (Resource, bool) {
	for _, r := range s.Get(c) {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}
