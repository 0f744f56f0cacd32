package discovery

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/notify"
	"github.com/nerrad567/vega-nmos-core/internal/registry"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

const queryPath = "/x-nmos/query/v1.3"

// newQueryServer serves a minimal Query API with one node and a push
// channel that announces device d1 on connect.
func newQueryServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc(queryPath+"/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, queryPath+"/")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && name == "subscriptions":
			var req registry.SubscriptionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(registry.Subscription{ //nolint:errcheck // test server
				ID:           "sub-" + strings.Trim(req.ResourcePath, "/"),
				WSHref:       "http://" + r.Host + "/ws" + req.ResourcePath,
				ResourcePath: req.ResourcePath,
				Persist:      req.Persist,
			})
		case r.Method == http.MethodGet && name == "nodes":
			w.Write([]byte(`[{"id":"n1","href":"http://node.test/"}]`)) //nolint:errcheck // test server
		case r.Method == http.MethodGet:
			w.Write([]byte(`[]`)) //nolint:errcheck // test server
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/ws/{collection}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if r.PathValue("collection") == "devices" {
			grain := `{"grain":{"topic":"/devices/","data":[{"path":"d1","post":{"id":"d1","node_id":"n1"}}]}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(grain)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEngine_WebSocketEndToEnd(t *testing.T) {
	srv := newQueryServer(t)
	sink := &recordingSink{}
	store := resource.NewStore()

	e := New(Options{
		Registry: registry.NewClient(nmos.NewClient()),
		Store:    store,
		Sink:     sink,
		Persist:  true,
	})
	defer e.Close()

	snap, err := e.Discover(t.Context(), srv.URL+queryPath)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(snap.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(snap.Nodes))
	}

	eventually(t, "device from push channel", func() bool { return store.Len(resource.Devices) == 1 })
	eventually(t, "all connected", func() bool {
		for _, st := range e.SubscriptionStates() {
			if st != StateConnected {
				return false
			}
		}
		return true
	})

	d, ok := store.Get(resource.Devices, "d1")
	if !ok || d.NodeID() != "n1" {
		t.Errorf("device d1 = %v, want node_id n1", d)
	}
	if n := len(sink.find(isUpdate)); n != 1 {
		t.Errorf("resource updates = %d, want 1", n)
	}

	e.Stop()
	for c, st := range e.SubscriptionStates() {
		if st != StateClosed {
			t.Errorf("%s state = %v, want closed", c, st)
		}
	}
	if n := len(sink.find(func(ev notify.Event) bool {
		st, ok := ev.Payload.(notify.ConnectionStatus)
		return ok && st.Status == notify.StatusDisconnected
	})); n != 0 {
		t.Errorf("disconnected statuses after Stop = %d, want 0", n)
	}
}

func TestWebSocketDialer_Errors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/nodes"

	_, err := WebSocketDialer{}.Dial(t.Context(), wsURL)
	var upErr *nmos.UpstreamError
	if !errors.As(err, &upErr) || upErr.Status != http.StatusNotFound {
		t.Errorf("Dial() to non-websocket endpoint error = %v, want UpstreamError 404", err)
	}

	srv.Close()
	_, err = WebSocketDialer{}.Dial(t.Context(), wsURL)
	if !errors.Is(err, nmos.ErrNetwork) {
		t.Errorf("Dial() to closed server error = %v, want ErrNetwork", err)
	}
}
