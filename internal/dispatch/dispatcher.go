// Package dispatch owns the process-wide analytics client.
//
// The Dispatcher is the only path from the relay to a Transport. It is a no-op while tracking is
// disabled or no write key is configured, constructs its transport lazily exactly once, and never
// lets a delivery problem reach the caller: failures end in a log line, a metric and the
// ErrorHandler callback.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
)

// Settings gate delivery. They are read once at startup; rotating the write key requires a restart.
type Settings struct {
	Enabled  bool
	WriteKey string
}

// Open reports whether delivery is allowed at all.
func (s Settings) Open() bool {
	return s.Enabled && strings.TrimSpace(s.WriteKey) != ""
}

// Dispatcher delivers payloads through a lazily built Transport. Safe for concurrent use.
type Dispatcher struct {
	settings Settings
	factory  TransportFactory
	onError  ErrorHandler
	metrics  Recorder

	mu        sync.RWMutex // write lock only for transport construction and teardown
	transport Transport
	closed    bool
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithErrorHandler sets the callback receiving transport failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(d *Dispatcher) { d.onError = h }
}

// WithRecorder sets the outcome metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.metrics = r }
}

// New creates a Dispatcher. No transport is built until the first delivery with an open gate.
func New(settings Settings, factory TransportFactory, opts ...Option) *Dispatcher {
	if factory == nil {
		panic("dispatch: transport factory must not be nil")
	}
	d := &Dispatcher{
		settings: settings,
		factory:  factory,
		metrics:  NoopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.onError == nil {
		d.onError = func(op v1.Operation, err error) {
			slog.Error("[Dispatcher] Delivery failed", "operation", op, "error", err)
		}
	}
	return d
}

// Enabled reports whether calls will reach a transport.
func (d *Dispatcher) Enabled() bool {
	return d.settings.Open()
}

// Identify sends an identify call.
func (d *Dispatcher) Identify(ctx context.Context, p *v1.Payload) {
	d.Call(ctx, v1.OperationIdentify, p)
}

// Track sends a track call.
func (d *Dispatcher) Track(ctx context.Context, p *v1.Payload) {
	d.Call(ctx, v1.OperationTrack, p)
}

// Page sends a page call.
func (d *Dispatcher) Page(ctx context.Context, p *v1.Payload) {
	d.Call(ctx, v1.OperationPage, p)
}

// Call delivers p as op. It never returns or panics on delivery problems.
func (d *Dispatcher) Call(ctx context.Context, op v1.Operation, p *v1.Payload) {
	if !d.Enabled() {
		d.metrics.RecordOutcome(metricOp(op), OutcomeDisabled)
		return
	}

	if !op.Valid() {
		slog.Warn("[Dispatcher] Unsupported operation, ignoring", "operation", string(op))
		d.metrics.RecordOutcome(metricOp(op), OutcomeUnsupported)
		return
	}

	if p == nil {
		p = &v1.Payload{}
	}
	if err := p.Validate(op); err != nil {
		slog.Warn("[Dispatcher] Suppressing malformed payload", "operation", op, "error", err)
		d.metrics.RecordOutcome(op, OutcomeInvalid)
		return
	}

	t, err := d.client()
	if err != nil {
		d.fail(op, err)
		return
	}
	if t == nil {
		// closed
		d.metrics.RecordOutcome(op, OutcomeDisabled)
		return
	}

	err = d.deliver(ctx, t, op, p)
	switch {
	case err == nil:
		d.metrics.RecordOutcome(op, OutcomeSent)
	case errors.Is(err, ErrUnsupportedOperation):
		slog.Warn("[Dispatcher] Transport does not support operation, ignoring", "operation", op)
		d.metrics.RecordOutcome(op, OutcomeUnsupported)
	default:
		d.fail(op, err)
	}
}

// deliver invokes the transport, converting a panic into an error.
func (d *Dispatcher) deliver(ctx context.Context, t Transport, op v1.Operation, p *v1.Payload) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transport panic: %v", rec)
		}
	}()

	switch op {
	case v1.OperationIdentify:
		return t.Identify(ctx, p)
	case v1.OperationTrack:
		return t.Track(ctx, p)
	case v1.OperationPage:
		return t.Page(ctx, p)
	}
	return ErrUnsupportedOperation
}

// fail routes a delivery error to the callback and metrics.
func (d *Dispatcher) fail(op v1.Operation, err error) {
	d.metrics.RecordOutcome(op, OutcomeFailed)
	d.reportError(op, err)
}

// reportError invokes the ErrorHandler, shielding the caller from a panicking callback.
func (d *Dispatcher) reportError(op v1.Operation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[Dispatcher] Error handler panicked", "operation", op, "panic", rec)
		}
	}()
	d.onError(op, err)
}

// asyncError is handed to the transport for failures it detects after Call returned.
func (d *Dispatcher) asyncError(op v1.Operation, err error) {
	d.metrics.RecordOutcome(metricOp(op), OutcomeFailed)
	d.reportError(op, err)
}

// client returns the transport, building it on first use. Returns (nil, nil) after Close.
func (d *Dispatcher) client() (Transport, error) {
	d.mu.RLock()
	t, closed := d.transport, d.closed
	d.mu.RUnlock()
	if closed {
		return nil, nil
	}
	if t != nil {
		return t, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, nil
	}
	if d.transport != nil {
		return d.transport, nil
	}

	t, err := d.factory(d.settings.WriteKey, d.asyncError)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	if t == nil {
		return nil, errors.New("build transport: factory returned nil transport")
	}

	slog.Info("[Dispatcher] Transport initialized")
	d.transport = t
	return t, nil
}

// Close flushes and releases the transport. Later calls are no-ops.
// The transport is detached under the lock and flushed outside it, so concurrent calls return at once.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	t := d.transport
	d.transport = nil
	d.mu.Unlock()

	if t == nil {
		return nil
	}

	if err := t.Close(ctx); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	slog.Info("[Dispatcher] Transport closed")
	return nil
}

// metricOp bounds label cardinality for operations the host invented.
func metricOp(op v1.Operation) v1.Operation {
	if op.Valid() {
		return op
	}
	return "unknown"
}
