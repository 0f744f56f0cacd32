package registration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/nerrad567/vega-nmos-core/internal/metrics"
	"github.com/nerrad567/vega-nmos-core/internal/nmos"
)

// Defaults applied by New.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryDelay        = 2 * time.Second
	DefaultLabel             = "Vega-NMOS"
)

// ErrNoRegistrationURL is returned by New when no Registration API is given.
var ErrNoRegistrationURL = errors.New("registration: registration URL is required")

// Logger defines the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Service.
type Options struct {
	// RegistrationURL is the Registration API base,
	// e.g. http://registry:8870/x-nmos/registration/v1.3
	RegistrationURL string

	// NodeID and DeviceID are generated when empty.
	NodeID   string
	DeviceID string

	Label    string
	Hostname string

	// Href is the externally reachable base address of this service.
	Href string

	// ControlHref is advertised as the device's sr-ctrl endpoint.
	// Defaults to Href + "api/v1".
	ControlHref string

	HeartbeatInterval time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration

	HTTP   *nmos.Client
	Clock  clock.WithTicker
	Logger Logger
}

// Service registers this node and device and heartbeats the node.
type Service struct {
	base        string
	nodeID      string
	deviceID    string
	label       string
	hostname    string
	href        string
	controlHref string

	interval   time.Duration
	attempts   int
	retryDelay time.Duration
	http       *nmos.Client
	clock      clock.WithTicker
	logger     Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	registered bool
}

// New creates a Service from opts.
//
// Returns:
//   - *Service: Ready to Register or Start
//   - error: ErrNoRegistrationURL if opts.RegistrationURL is empty
func New(opts Options) (*Service, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.RegistrationURL), "/")
	if base == "" {
		return nil, ErrNoRegistrationURL
	}

	s := &Service{
		base:        base,
		nodeID:      opts.NodeID,
		deviceID:    opts.DeviceID,
		label:       opts.Label,
		hostname:    opts.Hostname,
		href:        opts.Href,
		controlHref: opts.ControlHref,
		interval:    opts.HeartbeatInterval,
		attempts:    opts.RetryAttempts,
		retryDelay:  opts.RetryDelay,
		http:        opts.HTTP,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
	if s.nodeID == "" {
		s.nodeID = uuid.NewString()
	}
	if s.deviceID == "" {
		s.deviceID = uuid.NewString()
	}
	if s.label == "" {
		s.label = DefaultLabel
	}
	if s.href != "" && !strings.HasSuffix(s.href, "/") {
		s.href += "/"
	}
	if s.controlHref == "" && s.href != "" {
		s.controlHref = s.href + "api/v1"
	}
	if s.interval <= 0 {
		s.interval = DefaultHeartbeatInterval
	}
	if s.attempts <= 0 {
		s.attempts = DefaultRetryAttempts
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}
	if s.http == nil {
		s.http = nmos.NewClient()
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// SetLogger replaces the service logger.
func (s *Service) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// NodeID returns the registered node identifier.
func (s *Service) NodeID() string { return s.nodeID }

// DeviceID returns the registered device identifier.
func (s *Service) DeviceID() string { return s.deviceID }

// Registered reports whether the last registration attempt succeeded.
func (s *Service) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// Running reports whether the heartbeat loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Register posts the node and then the device, retrying the pair up to
// the configured number of attempts with a fixed delay in between.
func (s *Service) Register(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.registerOnce(ctx); err == nil {
			s.setRegistered(true)
			s.logger.Info("registered with registry",
				"node_id", s.nodeID,
				"device_id", s.deviceID,
				"registry", s.base,
			)
			return nil
		}
		s.setRegistered(false)
		s.logger.Warn("registration attempt failed",
			"attempt", attempt,
			"max_attempts", s.attempts,
			"error", err,
		)
		if attempt == s.attempts {
			break
		}

		timer := s.clock.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
	return fmt.Errorf("registration: giving up after %d attempts: %w", s.attempts, err)
}

func (s *Service) registerOnce(ctx context.Context) error {
	now := s.clock.Now()
	if _, err := s.http.Do(ctx, http.MethodPost, s.base+"/resource", payload{Type: TypeNode, Data: s.nodeResource(now)}); err != nil {
		return fmt.Errorf("registering node %s: %w", s.nodeID, err)
	}
	if _, err := s.http.Do(ctx, http.MethodPost, s.base+"/resource", payload{Type: TypeDevice, Data: s.deviceResource(now)}); err != nil {
		return fmt.Errorf("registering device %s: %w", s.deviceID, err)
	}
	return nil
}

func (s *Service) setRegistered(v bool) {
	s.mu.Lock()
	s.registered = v
	s.mu.Unlock()
}

// Heartbeat sends one node heartbeat. A 404 answer re-registers the node
// and device before returning.
func (s *Service) Heartbeat(ctx context.Context) error {
	_, err := s.http.Do(ctx, http.MethodPost, s.base+"/health/nodes/"+s.nodeID, nil)
	if err == nil {
		metrics.RecordHeartbeat("ok")
		return nil
	}

	if nmos.StatusOf(err) == http.StatusNotFound {
		metrics.RecordHeartbeat("reregister")
		s.setRegistered(false)
		s.logger.Warn("node unknown to registry, re-registering", "node_id", s.nodeID)
		return s.Register(ctx)
	}

	metrics.RecordHeartbeat("error")
	return fmt.Errorf("heartbeat for node %s: %w", s.nodeID, err)
}

// Start registers and then heartbeats until Stop is called or ctx ends.
// A registration failure is returned and no heartbeat loop is started.
// Calling Start while running restarts the loop.
func (s *Service) Start(ctx context.Context) error {
	s.Stop()

	if err := s.Register(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.heartbeatLoop(loopCtx, done)
	return nil
}

func (s *Service) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := s.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("heartbeat failed", "node_id", s.nodeID, "error", err)
			}
		}
	}
}

// Stop ends the heartbeat loop and waits for it to exit. Safe to call
// when not running.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Unregister deletes the device and then the node from the registry.
// A 404 for either resource is not an error.
func (s *Service) Unregister(ctx context.Context) error {
	s.Stop()

	for _, path := range []string{
		"/resource/devices/" + s.deviceID,
		"/resource/nodes/" + s.nodeID,
	} {
		_, err := s.http.Do(ctx, http.MethodDelete, s.base+path, nil)
		if err != nil && nmos.StatusOf(err) != http.StatusNotFound {
			return fmt.Errorf("unregistering %s: %w", path, err)
		}
	}
	s.setRegistered(false)
	return nil
}
