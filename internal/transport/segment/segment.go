// Package segment delivers relay payloads to a Segment-compatible collector through analytics-go.
//
// analytics-go batches messages in the background and posts them to <endpoint>/v1/batch with the
// write key as basic-auth user. Enqueue only validates and buffers, so the synchronous error
// returned by a Transport call covers malformed messages and a closed client; network failures
// surface later through the dispatcher's ErrorHandler.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/analytics-go/v3"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/dispatch"
)

// DefaultEndpoint is the public Segment API.
const DefaultEndpoint = analytics.DefaultEndpoint

// Options tunes the underlying analytics-go client. Zero values fall back to analytics-go defaults.
type Options struct {
	Endpoint       string
	BatchSize      int
	FlushInterval  time.Duration
	RequestTimeout time.Duration
}

// Transport is a dispatch.Transport backed by an analytics.Client.
type Transport struct {
	client analytics.Client
}

var _ dispatch.Transport = (*Transport)(nil)

// NewFactory returns a dispatch.TransportFactory building segment transports with opts.
func NewFactory(opts Options) dispatch.TransportFactory {
	return func(writeKey string, onError dispatch.ErrorHandler) (dispatch.Transport, error) {
		return New(writeKey, opts, onError)
	}
}

// New builds a Transport. onError receives batch failures reported after Enqueue returned.
func New(writeKey string, opts Options, onError dispatch.ErrorHandler) (*Transport, error) {
	if strings.TrimSpace(writeKey) == "" {
		return nil, fmt.Errorf("segment: write key is required")
	}

	cfg := analytics.Config{
		Endpoint:  opts.Endpoint,
		Interval:  opts.FlushInterval,
		BatchSize: opts.BatchSize,
		Logger:    slogLogger{},
		Callback:  callback{onError: onError},
		Transport: newHTTPTransport(opts.RequestTimeout),
	}

	client, err := analytics.NewWithConfig(writeKey, cfg)
	if err != nil {
		return nil, fmt.Errorf("segment: invalid client config: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	slog.Info("[Segment] Client initialized", "endpoint", endpoint, "batch_size", opts.BatchSize, "flush_interval", opts.FlushInterval)

	return &Transport{client: client}, nil
}

// Identify enqueues an identify message.
func (t *Transport) Identify(_ context.Context, p *v1.Payload) error {
	return t.enqueue(v1.OperationIdentify, IdentifyMessage(p))
}

// Track enqueues a track message.
func (t *Transport) Track(_ context.Context, p *v1.Payload) error {
	return t.enqueue(v1.OperationTrack, TrackMessage(p))
}

// Page enqueues a page message.
func (t *Transport) Page(_ context.Context, p *v1.Payload) error {
	return t.enqueue(v1.OperationPage, PageMessage(p))
}

func (t *Transport) enqueue(op v1.Operation, msg analytics.Message) error {
	if err := t.client.Enqueue(msg); err != nil {
		return fmt.Errorf("segment %s: %w", op, err)
	}
	return nil
}

// Close flushes buffered messages. If ctx ends first the flush keeps running in the background.
func (t *Transport) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- t.client.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("segment close: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("segment close: %w", ctx.Err())
	}
}

// IdentifyMessage converts p into an analytics.Identify.
func IdentifyMessage(p *v1.Payload) analytics.Identify {
	return analytics.Identify{
		UserId:      p.UserID,
		AnonymousId: p.AnonymousID,
		Traits:      analytics.Traits(p.Traits),
		Context:     messageContext(p.Context),
		Timestamp:   p.Timestamp,
	}
}

// TrackMessage converts p into an analytics.Track.
func TrackMessage(p *v1.Payload) analytics.Track {
	return analytics.Track{
		UserId:      p.UserID,
		AnonymousId: p.AnonymousID,
		Event:       p.Event,
		Properties:  analytics.Properties(p.Properties),
		Context:     messageContext(p.Context),
		Timestamp:   p.Timestamp,
	}
}

// PageMessage converts p into an analytics.Page.
func PageMessage(p *v1.Payload) analytics.Page {
	return analytics.Page{
		UserId:      p.UserID,
		AnonymousId: p.AnonymousID,
		Name:        p.Name,
		Properties:  analytics.Properties(p.Properties),
		Context:     messageContext(p.Context),
		Timestamp:   p.Timestamp,
	}
}

func messageContext(c *v1.Context) *analytics.Context {
	if c == nil {
		return nil
	}
	out := &analytics.Context{
		UserAgent: c.UserAgent,
		Traits:    analytics.Traits(c.Traits),
	}
	if ip := net.ParseIP(strings.TrimSpace(c.IP)); ip != nil {
		out.IP = ip
	}
	return out
}

// newHTTPTransport bounds dialing and waiting for response headers by timeout.
func newHTTPTransport(timeout time.Duration) http.RoundTripper {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		base.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		base.ResponseHeaderTimeout = timeout
		base.TLSHandshakeTimeout = timeout
	}
	return base
}
