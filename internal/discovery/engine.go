package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/nerrad567/vega-nmos-core/internal/metrics"
	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/notify"
	"github.com/nerrad567/vega-nmos-core/internal/registry"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// Default subscription parameters.
const (
	DefaultMaxUpdateRateMS = 100
	defaultEventBuffer     = 256
)

// Registry is the subset of *registry.Client used by the engine.
type Registry interface {
	FetchCollection(ctx context.Context, base string, c resource.Collection) ([]resource.Resource, error)
	CreateSubscription(ctx context.Context, queryBase string, req registry.SubscriptionRequest) (*registry.Subscription, error)
}

// Logger defines the logging interface used by the engine.
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

// Options configures an Engine. Registry and Store are required.
type Options struct {
	Registry Registry
	Store    *resource.Store
	Sink     notify.Sink
	Dialer   Dialer
	Clock    clock.Clock
	Logger   Logger

	// MaxUpdateRateMS is requested from the registry for every
	// subscription. Zero means DefaultMaxUpdateRateMS.
	MaxUpdateRateMS int
	Persist         bool
	Backoff         BackoffConfig

	// EventBuffer sizes the queue between subscriptions and the sink.
	EventBuffer int
}

// Engine mirrors a registry into a Store: it bootstraps all collections
// on Discover and then keeps them current through one push subscription
// per collection.
//
// Notifications from every subscription pass through a single dispatcher
// goroutine, so the Sink is never called concurrently.
//
// Thread Safety: All methods are safe for concurrent use.
type Engine struct {
	opts Options

	// discoverMu serialises Discover and Stop so subscription sets never
	// overlap.
	discoverMu  sync.Mutex
	registryURL string
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	subsMu sync.RWMutex
	subs   map[resource.Collection]*subscription

	// events feeds the dispatcher. sendMu guards closing it.
	events       chan notify.Event
	sendMu       sync.RWMutex
	closed       bool
	dispatchDone chan struct{}
}

// New creates an Engine and starts its notification dispatcher. Call
// Close to release it.
func New(opts Options) *Engine {
	if opts.Sink == nil {
		opts.Sink = notify.Discard
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.MaxUpdateRateMS <= 0 {
		opts.MaxUpdateRateMS = DefaultMaxUpdateRateMS
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	opts.Backoff = opts.Backoff.withDefaults()

	e := &Engine{
		opts:         opts,
		subs:         make(map[resource.Collection]*subscription),
		events:       make(chan notify.Event, opts.EventBuffer),
		dispatchDone: make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// Discover fetches every collection from the registry query API at
// registryURL, replaces the store with the result and restarts push
// subscriptions against that registry.
//
// On any fetch failure the store and the running subscriptions are left
// untouched, an "error" connection status is emitted and the error is
// returned.
//
// Parameters:
//   - ctx: Bounds the bootstrap fetches only; subscriptions outlive it
//   - registryURL: Query API base, e.g. http://registry/x-nmos/query/v1.3
//
// Returns:
//   - resource.Snapshot: The freshly fetched collections
//   - error: nmos.ErrInvalidArgument for an empty URL, or the fetch failure
func (e *Engine) Discover(ctx context.Context, registryURL string) (resource.Snapshot, error) {
	base := strings.TrimRight(strings.TrimSpace(registryURL), "/")
	if base == "" {
		return resource.Snapshot{}, fmt.Errorf("%w: registry URL is required", nmos.ErrInvalidArgument)
	}

	e.discoverMu.Lock()
	defer e.discoverMu.Unlock()

	snap, err := e.bootstrap(ctx, base)
	if err != nil {
		metrics.RecordDiscover("error")
		e.opts.Logger.Error("discovery failed", "registry", base, "error", err)
		e.emit(context.Background(), notify.ConnectionStatus{
			Status:  notify.StatusError,
			Message: err.Error(),
		}.Event(e.opts.Clock.Now()))
		return resource.Snapshot{}, err
	}

	e.stopLocked()
	e.opts.Store.Replace(snap)
	snap = e.opts.Store.Snapshot()
	for c, n := range snap.Counts() {
		metrics.SetResourceCount(string(c), n)
	}
	e.registryURL = base
	e.startLocked(base)

	metrics.RecordDiscover("success")
	e.opts.Logger.Info("discovery complete", "registry", base, "counts", snap.Counts())
	return snap, nil
}

// bootstrap fetches the five collections concurrently. Any failure
// cancels the rest.
func (e *Engine) bootstrap(ctx context.Context, base string) (resource.Snapshot, error) {
	cols := resource.Collections()
	lists := make([][]resource.Resource, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cols {
		g.Go(func() error {
			list, err := e.opts.Registry.FetchCollection(gctx, base, c)
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resource.Snapshot{}, err
	}

	var snap resource.Snapshot
	for i, c := range cols {
		snap.Set(c, lists[i])
	}
	return snap, nil
}

// startLocked launches one subscription per collection. discoverMu must
// be held.
func (e *Engine) startLocked(base string) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	subs := make(map[resource.Collection]*subscription, len(resource.Collections()))
	for _, c := range resource.Collections() {
		subs[c] = &subscription{
			collection: c,
			queryBase:  base,
			registry:   e.opts.Registry,
			dialer:     e.opts.Dialer,
			store:      e.opts.Store,
			clock:      e.opts.Clock,
			logger:     e.opts.Logger,
			request: registry.SubscriptionRequest{
				MaxUpdateRateMS: e.opts.MaxUpdateRateMS,
				ResourcePath:    c.Path(),
				Persist:         e.opts.Persist,
				Params:          map[string]any{},
			},
			backoff: NewBackoff(e.opts.Backoff),
			emit:    e.emit,
		}
	}

	e.subsMu.Lock()
	e.subs = subs
	e.subsMu.Unlock()

	for _, s := range subs {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			s.run(ctx)
		}()
	}
}

// Stop closes every push channel and waits for the subscriptions to exit.
// The store keeps its contents.
func (e *Engine) Stop() {
	e.discoverMu.Lock()
	defer e.discoverMu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
	e.opts.Logger.Debug("push subscriptions stopped", "registry", e.registryURL)
}

// Close stops the subscriptions, then drains and stops the dispatcher.
// The Engine must not be used afterwards.
func (e *Engine) Close() {
	e.Stop()

	e.sendMu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.sendMu.Unlock()

	<-e.dispatchDone
}

// Resources returns a copy of the current store contents. It performs no I/O.
func (e *Engine) Resources() resource.Snapshot {
	return e.opts.Store.Snapshot()
}

// RegistryURL returns the registry of the last successful Discover.
func (e *Engine) RegistryURL() string {
	e.discoverMu.Lock()
	defer e.discoverMu.Unlock()
	return e.registryURL
}

// SubscriptionStates reports the state of each collection's subscription.
// Collections never subscribed report StateIdle.
func (e *Engine) SubscriptionStates() map[resource.Collection]State {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()

	out := make(map[resource.Collection]State, len(resource.Collections()))
	for _, c := range resource.Collections() {
		if s, ok := e.subs[c]; ok {
			out[c] = s.State()
		} else {
			out[c] = StateIdle
		}
	}
	return out
}

// emit queues ev for the dispatcher. It gives up when ctx is done or the
// engine is closed.
func (e *Engine) emit(ctx context.Context, ev notify.Event) {
	e.sendMu.RLock()
	defer e.sendMu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

func (e *Engine) dispatch() {
	defer close(e.dispatchDone)
	for ev := range e.events {
		e.deliver(ev)
	}
}

func (e *Engine) deliver(ev notify.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Error("panic in notification sink", "kind", ev.Kind, "panic", r)
		}
	}()
	e.opts.Sink.Notify(ev)
}
