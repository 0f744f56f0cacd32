package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/nerrad567/vega-nmos-core/internal/metrics"
	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/notify"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// defaultTransportType is assumed when a transport file has no Content-Type.
const defaultTransportType = "application/sdp"

// historyWriteTimeout bounds persistence after the caller's context ends.
const historyWriteTimeout = 2 * time.Second

// Logger defines the logging interface used by the orchestrator.
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

// Options configures an Orchestrator. Resources is required.
type Options struct {
	Resources resource.Reader
	HTTP      *nmos.Client
	Sink      notify.Sink
	History   HistoryRepository
	Clock     clock.PassiveClock
	Logger    Logger
}

// Orchestrator issues connect and disconnect requests to receivers and
// caches the outcome per receiver.
//
// It reads the resource store but never modifies it. Requests for
// different receivers run concurrently; the record cache is mutex guarded.
type Orchestrator struct {
	resources resource.Reader
	http      *nmos.Client
	sink      notify.Sink
	history   HistoryRepository
	clock     clock.PassiveClock
	logger    Logger

	mu      sync.RWMutex
	records map[string]Record
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		resources: opts.Resources,
		http:      opts.HTTP,
		sink:      opts.Sink,
		history:   opts.History,
		clock:     opts.Clock,
		logger:    opts.Logger,
		records:   make(map[string]Record),
	}
	if o.http == nil {
		o.http = nmos.NewClient()
	}
	if o.sink == nil {
		o.sink = notify.Discard
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	return o
}

// target is a resolved receiver or sender control endpoint.
type target struct {
	resource resource.Resource
	control  string
}

// resolve finds a resource of collection c and its Connection API base.
func (o *Orchestrator) resolve(c resource.Collection, kind, id string) (target, error) {
	r, ok := o.resources.Get(c, id)
	if !ok {
		return target{}, fmt.Errorf("%w: %s %s", nmos.ErrNotFound, kind, id)
	}
	node, device, err := owningNode(o.resources, kind, r)
	if err != nil {
		return target{resource: r}, err
	}
	base, err := controlBase(node, device)
	if err != nil {
		return target{resource: r}, err
	}
	return target{resource: r, control: base}, nil
}

// Connect stages sender senderID on receiver receiverID with immediate
// activation.
//
// Parameters:
//   - ctx: Context for cancellation; each request also carries the client timeout
//   - senderID: Sender to connect
//   - receiverID: Receiver to configure
//
// Returns:
//   - map[string]any: The receiver's response body
//   - error: nmos.ErrInvalidArgument, ErrNotFound, ErrInvalidResource, or the
//     classified upstream/network failure
func (o *Orchestrator) Connect(ctx context.Context, senderID, receiverID string) (map[string]any, error) {
	if senderID == "" || receiverID == "" {
		return nil, fmt.Errorf("%w: sender and receiver ids are required", nmos.ErrInvalidArgument)
	}

	if _, ok := o.resources.Get(resource.Receivers, receiverID); !ok {
		return nil, fmt.Errorf("%w: receiver %s", nmos.ErrNotFound, receiverID)
	}
	if _, ok := o.resources.Get(resource.Senders, senderID); !ok {
		err := fmt.Errorf("%w: sender %s", nmos.ErrNotFound, senderID)
		o.fail(ctx, OpConnect, receiverID, senderID, "", err)
		return nil, err
	}

	rx, err := o.resolve(resource.Receivers, "receiver", receiverID)
	if err != nil {
		if rx.resource != nil {
			o.fail(ctx, OpConnect, receiverID, senderID, rx.control, err)
		}
		return nil, err
	}

	patch := StagedPatch{
		SenderID:      &senderID,
		MasterEnable:  true,
		Activation:    Activation{Mode: ActivateImmediate},
		TransportFile: o.transportFile(ctx, senderID),
	}

	stagedURL := stagedURL(rx.control, receiverID)
	body, status, err := o.patch(ctx, stagedURL, patch)
	if err != nil {
		o.fail(ctx, OpConnect, receiverID, senderID, rx.control, err)
		return nil, err
	}

	rec := Record{
		ReceiverID:      receiverID,
		SenderID:        senderID,
		Status:          StatusActive,
		Timestamp:       o.clock.Now(),
		TransportParams: body["transport_params"],
		HTTPStatus:      status,
	}
	o.mu.Lock()
	o.records[receiverID] = rec
	o.mu.Unlock()

	metrics.RecordConnectionOperation(OpConnect, "success")
	o.logger.Info("receiver connected", "receiver_id", receiverID, "sender_id", senderID, "control", rx.control)
	o.publish(ctx, OpConnect, rec, rx.control)
	return body, nil
}

// Disconnect stages a null sender with master_enable false on receiverID.
// On success any cached Record for the receiver is removed.
func (o *Orchestrator) Disconnect(ctx context.Context, receiverID string) (map[string]any, error) {
	if receiverID == "" {
		return nil, fmt.Errorf("%w: receiver id is required", nmos.ErrInvalidArgument)
	}

	rx, err := o.resolve(resource.Receivers, "receiver", receiverID)
	if err != nil {
		if rx.resource != nil {
			o.fail(ctx, OpDisconnect, receiverID, "", rx.control, err)
		}
		return nil, err
	}

	patch := StagedPatch{
		SenderID:     nil,
		MasterEnable: false,
		Activation:   Activation{Mode: ActivateImmediate},
	}
	body, status, err := o.patch(ctx, stagedURL(rx.control, receiverID), patch)
	if err != nil {
		o.fail(ctx, OpDisconnect, receiverID, "", rx.control, err)
		return nil, err
	}

	o.mu.Lock()
	prev := o.records[receiverID]
	delete(o.records, receiverID)
	o.mu.Unlock()

	metrics.RecordConnectionOperation(OpDisconnect, "success")
	o.logger.Info("receiver disconnected", "receiver_id", receiverID, "previous_sender_id", prev.SenderID)
	o.publish(ctx, OpDisconnect, Record{
		ReceiverID: receiverID,
		Status:     StatusInactive,
		Timestamp:  o.clock.Now(),
		HTTPStatus: status,
	}, rx.control)
	return body, nil
}

// QueryState reads the receiver's active parameters from the device and
// caches the result: active when a sender is set and master_enable is
// true, unknown otherwise.
func (o *Orchestrator) QueryState(ctx context.Context, receiverID string) (Record, error) {
	if receiverID == "" {
		return Record{}, fmt.Errorf("%w: receiver id is required", nmos.ErrInvalidArgument)
	}

	rx, err := o.resolve(resource.Receivers, "receiver", receiverID)
	if err != nil {
		if rx.resource != nil {
			o.fail(ctx, OpQuery, receiverID, "", rx.control, err)
		}
		return Record{}, err
	}

	var active ActiveParams
	activeURL := rx.control + "/single/receivers/" + receiverID + "/active"
	resp, err := o.http.GetJSON(ctx, activeURL, &active)
	if err != nil {
		o.fail(ctx, OpQuery, receiverID, "", rx.control, err)
		return Record{}, err
	}

	rec := Record{
		ReceiverID: receiverID,
		Status:     StatusUnknown,
		Timestamp:  o.clock.Now(),
		HTTPStatus: resp.Status,
	}
	if active.SenderID != nil && *active.SenderID != "" && active.MasterEnable {
		rec.SenderID = *active.SenderID
		rec.Status = StatusActive
		if len(active.TransportParams) > 0 {
			rec.TransportParams = active.TransportParams
		}
	}

	o.mu.Lock()
	o.records[receiverID] = rec
	o.mu.Unlock()

	metrics.RecordConnectionOperation(OpQuery, "success")
	o.publish(ctx, OpQuery, rec, rx.control)
	return rec, nil
}

// ActiveConnections returns a copy of the record cache keyed by receiver
// id. It performs no I/O.
func (o *Orchestrator) ActiveConnections() map[string]Record {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]Record, len(o.records))
	for id, rec := range o.records {
		out[id] = rec
	}
	return out
}

// History returns persisted attempts for a receiver. It returns an empty
// list when no repository is configured.
func (o *Orchestrator) History(ctx context.Context, receiverID string, limit int) ([]HistoryEntry, error) {
	if receiverID == "" {
		return nil, fmt.Errorf("%w: receiver id is required", nmos.ErrInvalidArgument)
	}
	if o.history == nil {
		return []HistoryEntry{}, nil
	}
	return o.history.ListByReceiver(ctx, receiverID, limit)
}

// transportFile fetches the sender's transport descriptor. Failures are
// logged and yield nil.
func (o *Orchestrator) transportFile(ctx context.Context, senderID string) *TransportFile {
	tx, err := o.resolve(resource.Senders, "sender", senderID)
	if err != nil {
		o.logger.Warn("sender control endpoint unavailable, connecting without transport file",
			"sender_id", senderID, "error", err)
		return nil
	}

	tfURL := tx.control + "/single/senders/" + senderID + "/transportfile"
	resp, err := o.http.Do(ctx, http.MethodGet, tfURL, nil)
	if err != nil {
		o.logger.Warn("fetching transport file failed, connecting without it",
			"sender_id", senderID, "url", tfURL, "error", err)
		return nil
	}

	typ := resp.ContentType
	if typ == "" {
		typ = defaultTransportType
	}
	return &TransportFile{Data: string(resp.Body), Type: typ}
}

func (o *Orchestrator) patch(ctx context.Context, url string, body StagedPatch) (map[string]any, int, error) {
	out := map[string]any{}
	resp, err := o.http.SendJSON(ctx, http.MethodPatch, url, body, &out)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		return nil, status, err
	}
	return out, resp.Status, nil
}

// fail replaces any cached record for receiverID with an error record.
func (o *Orchestrator) fail(ctx context.Context, op, receiverID, senderID, control string, err error) {
	rec := Record{
		ReceiverID: receiverID,
		SenderID:   senderID,
		Status:     StatusError,
		Timestamp:  o.clock.Now(),
		Error:      err.Error(),
		HTTPStatus: nmos.StatusOf(err),
	}
	o.mu.Lock()
	o.records[receiverID] = rec
	o.mu.Unlock()

	metrics.RecordConnectionOperation(op, nmos.Kind(err))
	o.logger.Warn("connection operation failed",
		"operation", op,
		"receiver_id", receiverID,
		"sender_id", senderID,
		"error", err,
	)
	o.publish(ctx, op, rec, control)
}

// publish notifies the sink and appends to history.
func (o *Orchestrator) publish(ctx context.Context, op string, rec Record, control string) {
	state := notify.ConnectionState{
		Operation:  op,
		ReceiverID: rec.ReceiverID,
		SenderID:   rec.SenderID,
		Status:     string(rec.Status),
		Error:      rec.Error,
		HTTPStatus: rec.HTTPStatus,
		Transport:  rec.TransportParams,
		Timestamp:  rec.Timestamp,
	}
	o.sink.Notify(state.Event(rec.Timestamp))

	if o.history == nil {
		return
	}
	entry := HistoryEntry{
		ReceiverID: rec.ReceiverID,
		SenderID:   rec.SenderID,
		Operation:  op,
		Status:     rec.Status,
		ControlURL: control,
		HTTPStatus: rec.HTTPStatus,
		Error:      rec.Error,
		CreatedAt:  rec.Timestamp,
	}
	if rec.TransportParams != nil {
		if b, err := json.Marshal(rec.TransportParams); err == nil {
			entry.TransportParams = b
		}
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := o.history.Append(hctx, entry); err != nil {
		o.logger.Error("recording connection history failed", "receiver_id", rec.ReceiverID, "error", err)
	}
}

func stagedURL(control, receiverID string) string {
	return strings.TrimRight(control, "/") + "/single/receivers/" + receiverID + "/staged"
}

// IsClientError reports whether err was caused by the request rather than
// the device or network.
func IsClientError(err error) bool {
	return errors.Is(err, nmos.ErrInvalidArgument) ||
		errors.Is(err, nmos.ErrNotFound) ||
		errors.Is(err, nmos.ErrInvalidResource)
}
