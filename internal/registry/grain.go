package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// ChangeType classifies one record-level change in a grain.
type ChangeType string

// Change types derived from the presence and equality of pre and post.
const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
	Synced   ChangeType = "synced"
)

// Change is one (pre, post) pair for a single record.
type Change struct {
	Path string
	Pre  resource.Resource
	Post resource.Resource
}

// ID returns the record id, taken from the path or else from the record.
func (c Change) ID() string {
	if id := strings.Trim(c.Path, "/"); id != "" {
		return id
	}
	if c.Post != nil {
		return c.Post.ID()
	}
	return c.Pre.ID()
}

// Type classifies the change. Both records present and deep-equal is a
// sync; both present and different is a modify.
func (c Change) Type() ChangeType {
	switch {
	case c.Pre == nil:
		return Added
	case c.Post == nil:
		return Removed
	case cmp.Equal(c.Pre, c.Post):
		return Synced
	default:
		return Modified
	}
}

// Grain is a decoded push-channel message.
type Grain struct {
	Topic   string
	Changes []Change

	// Malformed holds one error per data entry that could not be decoded.
	// Those entries are absent from Changes.
	Malformed []error
}

type grainEnvelope struct {
	Grain *struct {
		Topic string            `json:"topic"`
		Data  []json.RawMessage `json:"data"`
	} `json:"grain"`
}

type rawChange struct {
	Path string          `json:"path"`
	Pre  json.RawMessage `json:"pre"`
	Post json.RawMessage `json:"post"`
}

// ParseGrain decodes a message of the form
// {"grain":{"topic":"/senders/","data":[{"path":"<id>","pre":{...},"post":{...}}]}}.
//
// A message without a grain object is an ErrProtocol error. Individual
// malformed data entries are reported in Grain.Malformed and do not fail
// the whole message.
func ParseGrain(data []byte) (Grain, error) {
	var env grainEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Grain{}, fmt.Errorf("%w: decoding grain: %w", nmos.ErrProtocol, err)
	}
	if env.Grain == nil {
		return Grain{}, fmt.Errorf("%w: message has no grain", nmos.ErrProtocol)
	}

	g := Grain{
		Topic:   env.Grain.Topic,
		Changes: make([]Change, 0, len(env.Grain.Data)),
	}
	for i, raw := range env.Grain.Data {
		ch, err := decodeChange(raw)
		if err != nil {
			g.Malformed = append(g.Malformed, fmt.Errorf("%w: grain data[%d]: %w", nmos.ErrProtocol, i, err))
			continue
		}
		g.Changes = append(g.Changes, ch)
	}
	return g, nil
}

func decodeChange(raw json.RawMessage) (Change, error) {
	var rc rawChange
	if err := json.Unmarshal(raw, &rc); err != nil {
		return Change{}, err
	}

	pre, err := decodeRecord(rc.Pre)
	if err != nil {
		return Change{}, fmt.Errorf("pre: %w", err)
	}
	post, err := decodeRecord(rc.Post)
	if err != nil {
		return Change{}, fmt.Errorf("post: %w", err)
	}
	if pre == nil && post == nil {
		return Change{}, fmt.Errorf("neither pre nor post is present")
	}

	ch := Change{Path: rc.Path, Pre: pre, Post: post}
	if ch.ID() == "" {
		return Change{}, fmt.Errorf("no record id")
	}
	return ch, nil
}

// decodeRecord returns nil for a missing or null record.
func decodeRecord(raw json.RawMessage) (resource.Resource, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var r resource.Resource
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, err
	}
	return r, nil
}
