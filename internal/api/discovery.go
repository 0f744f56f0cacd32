package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/vega-nmos-core/internal/discovery"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// DiscoverRequest is the body of POST /nmos/discover.
type DiscoverRequest struct {
	RegistryURL string `json:"registryUrl"`
}

// DiscoverResponse reports a completed discovery.
type DiscoverResponse struct {
	Message   string            `json:"message"`
	Data      TopologyData      `json:"data"`
	Resources resource.Snapshot `json:"resources"`
}

// TopologyData wraps the nested node view.
type TopologyData struct {
	Nodes []resource.Resource `json:"nodes"`
}

// SubscriptionsResponse reports push subscription states per collection.
type SubscriptionsResponse struct {
	Registry      string                                  `json:"registry"`
	Subscriptions map[resource.Collection]discovery.State `json:"subscriptions"`
}

// handleDiscover bootstraps the store from a registry and restarts push
// subscriptions against it.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	snap, err := s.engine.Discover(r.Context(), req.RegistryURL)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DiscoverResponse{
		Message:   "Discovery successful",
		Data:      TopologyData{Nodes: resource.BuildTopology(snap)},
		Resources: snap,
	})
}

// handleResources returns the store snapshot, or one collection when the
// "collection" query parameter is set.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Resources()

	if name := r.URL.Query().Get("collection"); name != "" {
		c, err := resource.ParseCollection(name)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		list := snap.Get(c)
		if list == nil {
			list = []resource.Resource{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			string(c): list,
			"count":   len(list),
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleTopology returns the nested node -> device -> sender/receiver view.
func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	nodes := resource.BuildTopology(s.engine.Resources())
	if nodes == nil {
		nodes = []resource.Resource{}
	}
	writeJSON(w, http.StatusOK, TopologyData{Nodes: nodes})
}

// handleSubscriptions reports the push subscription state per collection.
func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SubscriptionsResponse{
		Registry:      s.engine.RegistryURL(),
		Subscriptions: s.engine.SubscriptionStates(),
	})
}

// handleStop tears down push subscriptions and the registration heartbeat.
// The store keeps its last contents.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	if s.registration != nil {
		s.registration.Stop()
	}
	s.logger.Info("registry connection stopped")
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Registry connection stopped",
	})
}
