package discovery

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/utils/clock"

	"github.com/nerrad567/vega-nmos-core/internal/metrics"
	"github.com/nerrad567/vega-nmos-core/internal/notify"
	"github.com/nerrad567/vega-nmos-core/internal/registry"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// State is the lifecycle state of one collection's push subscription.
type State int

// Subscription states.
const (
	StateIdle State = iota
	StateSubscribing
	StateConnected
	StateClosed
	StateFailed
)

var stateNames = [...]string{"idle", "subscribing", "connected", "closed", "failed"}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// subscription owns the push channel and backoff counter of one
// collection. Its run loop is the only writer of that collection between
// bootstraps, so grains are applied in the order they arrive.
type subscription struct {
	collection resource.Collection
	queryBase  string

	registry Registry
	dialer   Dialer
	store    *resource.Store
	clock    clock.Clock
	logger   Logger
	request  registry.SubscriptionRequest
	backoff  *Backoff
	emit     func(ctx context.Context, ev notify.Event)

	mu    sync.RWMutex
	state State
}

func (s *subscription) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *subscription) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.SetSubscriptionState(string(s.collection), int(st))
}

// run drives Subscribing -> Connected -> (Closed | Failed) until ctx is
// cancelled or the retry budget is spent.
func (s *subscription) run(ctx context.Context) {
	for {
		s.setState(StateSubscribing)
		err := s.session(ctx)
		if ctx.Err() != nil {
			s.setState(StateClosed)
			return
		}

		delay, ok := s.backoff.Next()
		if !ok {
			s.setState(StateFailed)
			s.logger.Error("push subscription failed permanently",
				"collection", s.collection,
				"attempts", s.backoff.Attempts(),
				"error", err,
			)
			s.emitStatus(ctx, notify.StatusFailed, fmt.Sprintf("giving up after %d reconnect attempts: %v", s.backoff.Attempts(), err))
			return
		}

		metrics.RecordReconnect(string(s.collection))
		s.logger.Warn("push subscription lost, retrying",
			"collection", s.collection,
			"attempt", s.backoff.Attempts(),
			"delay", delay,
			"error", err,
		)

		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateClosed)
			return
		case <-timer.C():
		}
	}
}

// session creates a registry subscription, opens its push channel and
// applies grains until the channel closes. It always returns a non-nil
// error describing why the session ended.
func (s *subscription) session(ctx context.Context) error {
	sub, err := s.registry.CreateSubscription(ctx, s.queryBase, s.request)
	if err != nil {
		return err
	}
	wsURL, err := sub.WebSocketURL()
	if err != nil {
		return err
	}

	ch, err := s.dialer.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("opening push channel %s: %w", wsURL, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
	defer func() {
		stop()
		_ = ch.Close()
	}()

	s.backoff.Reset()
	s.setState(StateConnected)
	s.logger.Info("push subscription connected", "collection", s.collection, "ws_href", wsURL)
	s.emitStatus(ctx, notify.StatusConnected, "")

	for {
		msg, err := ch.Read()
		if err != nil {
			if ctx.Err() == nil {
				s.emitStatus(ctx, notify.StatusDisconnected, err.Error())
			}
			return err
		}
		s.apply(ctx, msg)
	}
}

func (s *subscription) apply(ctx context.Context, msg []byte) {
	g, err := registry.ParseGrain(msg)
	if err != nil {
		metrics.RecordGrainMalformed(string(s.collection))
		s.logger.Warn("dropping malformed grain", "collection", s.collection, "error", err)
		return
	}
	for _, u := range Reconcile(s.store, s.collection, g, s.logger) {
		s.emit(ctx, u.Event(s.clock.Now()))
	}
}

func (s *subscription) emitStatus(ctx context.Context, status, message string) {
	s.emit(ctx, notify.ConnectionStatus{
		Status:       status,
		Message:      message,
		ResourcePath: s.collection.Path(),
	}.Event(s.clock.Now()))
}
