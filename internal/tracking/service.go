// Package tracking turns host lifecycle triggers into analytics calls.
//
// For each trigger the Service looks up its catalog binding, resolves the actor's identifier and
// assembles one payload per emitted operation before handing it to the dispatcher. Delivery is
// fire-and-forget: the only error the trigger path reports is an unknown trigger.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/catalog"
	"github.com/aevon-lab/segment-relay/internal/guest"
	"github.com/aevon-lab/segment-relay/internal/identity"
)

// Request carries the HTTP request details of the host action, when there was one.
type Request struct {
	IP        string
	UserAgent string
}

// Trigger is one host lifecycle event.
type Trigger struct {
	Name       string
	Actor      *identity.Actor // nil for guests
	Session    guest.Session   // nil when there is no session
	Properties map[string]interface{}
	Request    Request
}

// Dispatcher is the slice of dispatch.Dispatcher the service needs.
type Dispatcher interface {
	Enabled() bool
	Call(ctx context.Context, op v1.Operation, p *v1.Payload)
}

// Service handles lifecycle triggers.
type Service struct {
	catalog    *catalog.Catalog
	resolver   *identity.Resolver
	dispatcher Dispatcher
	now        func() time.Time
}

// NewService creates a Service.
func NewService(cat *catalog.Catalog, resolver *identity.Resolver, dispatcher Dispatcher) *Service {
	return &Service{
		catalog:    cat,
		resolver:   resolver,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// OnLifecycleEvent emits every call bound to t.Name. It returns catalog.ErrUnknownTrigger for an
// unbound trigger and nil otherwise; delivery problems never reach the caller.
func (s *Service) OnLifecycleEvent(ctx context.Context, t Trigger) error {
	binding, err := s.catalog.Lookup(t.Name)
	if err != nil {
		return err
	}

	if !s.dispatcher.Enabled() {
		return nil
	}

	props := binding.Filter(t.Properties)
	now := s.now()

	// Resolve once so every call of this trigger carries the same identifier.
	id := s.resolver.Resolve(ctx, t.Actor, t.Session)

	for _, emit := range binding.Emits {
		p, err := s.build(emit, t, id, props, now)
		if err != nil {
			slog.Warn("[Tracking] Skipping emit", "trigger", t.Name, "operation", emit.Operation, "error", err)
			continue
		}
		s.dispatcher.Call(ctx, emit.Operation, p)
	}
	return nil
}

func (s *Service) build(emit catalog.Emit, t Trigger, id identity.Identifier, props map[string]interface{}, now time.Time) (*v1.Payload, error) {
	p := &v1.Payload{Timestamp: now.UTC()}
	id.Apply(p)

	switch emit.Operation {
	case v1.OperationIdentify:
		if t.Actor == nil {
			return nil, fmt.Errorf("identify requires an actor")
		}
		p.Traits = s.resolver.Traits(t.Actor)
		if t.Actor.IPAddress != "" {
			p.EnsureContext().IP = t.Actor.IPAddress
		}

	case v1.OperationTrack:
		p.Event = emit.Event
		p.Properties = props
		applyRequest(p, t.Request)

	case v1.OperationPage:
		p.Name = emit.Name
		if p.Name == "" {
			if name, ok := props["name"].(string); ok {
				p.Name = name
			}
		}
		p.Properties = props
		applyRequest(p, t.Request)

	default:
		return nil, fmt.Errorf("unsupported operation %q", emit.Operation)
	}

	identity.EmbedTraitEmail(p, t.Actor)
	return p, nil
}

func applyRequest(p *v1.Payload, r Request) {
	if r.IP == "" && r.UserAgent == "" {
		return
	}
	c := p.EnsureContext()
	c.IP = r.IP
	c.UserAgent = r.UserAgent
}
