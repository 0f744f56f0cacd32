package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       RuntimeMetrics      `json:"runtime"`
	WebSocket     WSMetrics           `json:"websocket"`
	MQTT          MQTTMetrics         `json:"mqtt"`
	Registry      RegistryMetrics     `json:"registry"`
	Connections   ConnectionMetrics   `json:"connections"`
	Database      DatabaseMetrics     `json:"database"`
	Registration  *RegistrationStatus `json:"registration,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// RegistryMetrics summarises the resource store and push subscriptions.
type RegistryMetrics struct {
	URL           string            `json:"url"`
	Resources     map[string]int    `json:"resources"`
	Subscriptions map[string]string `json:"subscriptions"`
}

// ConnectionMetrics counts cached receiver records by status.
type ConnectionMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// RegistrationStatus reports self-registration.
type RegistrationStatus struct {
	NodeID  string `json:"node_id"`
	Running bool   `json:"running"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	// Store and subscription stats
	snap := s.engine.Resources()
	metrics.Registry = RegistryMetrics{
		URL:           s.engine.RegistryURL(),
		Resources:     make(map[string]int),
		Subscriptions: make(map[string]string),
	}
	for c, n := range snap.Counts() {
		metrics.Registry.Resources[string(c)] = n
	}
	for c, st := range s.engine.SubscriptionStates() {
		metrics.Registry.Subscriptions[string(c)] = st.String()
	}

	// Connection record stats
	records := s.orchestrator.ActiveConnections()
	metrics.Connections = ConnectionMetrics{
		Total:    len(records),
		ByStatus: make(map[string]int),
	}
	for _, rec := range records {
		metrics.Connections.ByStatus[string(rec.Status)]++
	}

	if s.registration != nil {
		metrics.Registration = &RegistrationStatus{
			NodeID:  s.registration.NodeID(),
			Running: s.registration.Running(),
		}
	}

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
