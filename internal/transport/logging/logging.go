// Package logging provides a dispatch.Transport that writes payloads to a slog.Logger instead of a
// collector. Used for local development with tracking.transport=log.
package logging

import (
	"context"
	"log/slog"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/dispatch"
)

// Transport logs every payload at info level.
type Transport struct {
	logger *slog.Logger
}

var _ dispatch.Transport = (*Transport)(nil)

// New returns a Transport writing to logger, or slog.Default when logger is nil.
func New(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{logger: logger}
}

// NewFactory adapts New to a dispatch.TransportFactory. The write key is never logged.
func NewFactory(logger *slog.Logger) dispatch.TransportFactory {
	return func(string, dispatch.ErrorHandler) (dispatch.Transport, error) {
		return New(logger), nil
	}
}

func (t *Transport) Identify(ctx context.Context, p *v1.Payload) error {
	t.write(ctx, v1.OperationIdentify, p)
	return nil
}

func (t *Transport) Track(ctx context.Context, p *v1.Payload) error {
	t.write(ctx, v1.OperationTrack, p)
	return nil
}

func (t *Transport) Page(ctx context.Context, p *v1.Payload) error {
	t.write(ctx, v1.OperationPage, p)
	return nil
}

func (t *Transport) Close(context.Context) error { return nil }

func (t *Transport) write(ctx context.Context, op v1.Operation, p *v1.Payload) {
	attrs := []interface{}{
		"operation", string(op),
		"user_id", p.UserID,
		"anonymous_id", p.AnonymousID,
	}
	if p.Event != "" {
		attrs = append(attrs, "event", p.Event)
	}
	if p.Name != "" {
		attrs = append(attrs, "name", p.Name)
	}
	if len(p.Traits) > 0 {
		attrs = append(attrs, "traits", p.Traits)
	}
	if len(p.Properties) > 0 {
		attrs = append(attrs, "properties", p.Properties)
	}
	if p.Context != nil {
		attrs = append(attrs, "ip", p.Context.IP, "user_agent", p.Context.UserAgent)
	}
	t.logger.InfoContext(ctx, "[LogTransport] Payload", attrs...)
}
