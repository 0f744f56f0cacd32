package nmos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []int
}

func (o *recordingObserver) ObserveRequest(_ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, status)
}

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"n1"},{"id":"n2"}]`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(WithObserver(obs))

	var out []map[string]any
	resp, err := c.GetJSON(context.Background(), srv.URL+"/nodes", &out)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if len(out) != 2 || out[1]["id"] != "n2" {
		t.Errorf("decoded = %v", out)
	}
	if len(obs.calls) != 1 || obs.calls[0] != http.StatusOK {
		t.Errorf("observer calls = %v, want [200]", obs.calls)
	}
}

func TestClient_SendJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("Method = %s, want PATCH", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(body) //nolint:errcheck // test server
	}))
	defer srv.Close()

	c := NewClient()
	var out map[string]any
	_, err := c.SendJSON(context.Background(), http.MethodPatch, srv.URL, map[string]any{"sender_id": "s1"}, &out)
	if err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}
	if out["sender_id"] != "s1" {
		t.Errorf("echo = %v", out)
	}
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":400,"error":"bad sender"}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.Do(context.Background(), http.MethodPatch, srv.URL+"/staged", map[string]any{})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	var up *UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("error %T is not *UpstreamError", err)
	}
	if up.Status != http.StatusBadRequest || up.Method != http.MethodPatch {
		t.Errorf("UpstreamError = %+v", up)
	}
	if string(up.Body) != `{"code":400,"error":"bad sender"}` {
		t.Errorf("Body = %q", up.Body)
	}
	if resp == nil || resp.Status != http.StatusBadRequest {
		t.Errorf("response should be returned alongside upstream error")
	}
	if StatusOf(err) != http.StatusBadRequest {
		t.Errorf("StatusOf() = %d", StatusOf(err))
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient()
	_, err := c.Do(context.Background(), http.MethodGet, url, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
	if errors.Is(err, ErrUpstream) {
		t.Error("network error must not match ErrUpstream")
	}
	if StatusOf(err) != 0 {
		t.Errorf("StatusOf() = %d, want 0", StatusOf(err))
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
	if !ne.Timeout() {
		t.Errorf("Timeout() = false for %v", ne.Err)
	}
}

func TestClient_ProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	var out []map[string]any
	_, err := NewClient().GetJSON(context.Background(), srv.URL, &out)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("error = %v, want ErrProtocol", err)
	}
}

func TestClient_EmptyBodyLeavesOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out := map[string]any{"kept": true}
	if _, err := NewClient().GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out["kept"] != true {
		t.Errorf("out = %v", out)
	}
}

func TestNewClient_Options(t *testing.T) {
	if got := NewClient().Timeout(); got != DefaultTimeout {
		t.Errorf("default Timeout() = %v", got)
	}
	if got := NewClient(WithTimeout(-1)).Timeout(); got != DefaultTimeout {
		t.Errorf("negative timeout should keep default, got %v", got)
	}
	if got := NewClient(WithTimeout(2 * time.Second)).Timeout(); got != 2*time.Second {
		t.Errorf("Timeout() = %v, want 2s", got)
	}
}
