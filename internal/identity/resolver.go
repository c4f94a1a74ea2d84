// Package identity derives the identifier and traits the collector sees for an actor.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/guest"
)

// ErrorAnonymousPrefix starts the random id forced when every strategy failed.
const ErrorAnonymousPrefix = "err_ua_"

// SSOLookup fetches an actor's linked SSO external id. ok is false when none is linked.
type SSOLookup interface {
	SSOExternalID(ctx context.Context, actorID string) (id string, ok bool, err error)
}

// Options configure a Resolver.
type Options struct {
	Source         UserIDSource
	InternalDomain string // email domain suffix of the operator's own organisation, optional
	Secret         string // process-wide secret for deterministic anonymous ids
}

// Resolver maps actors and guest contexts onto collector identifiers.
// It is safe for concurrent use.
type Resolver struct {
	opts   Options
	guests *guest.Registry
	sso    SSOLookup

	unknownSourceOnce sync.Once
}

// NewResolver creates a Resolver. sso may be nil, in which case Actor.SSOExternalID is used.
func NewResolver(opts Options, guests *guest.Registry, sso SSOLookup) *Resolver {
	if guests == nil {
		panic("identity: guest registry must not be nil")
	}
	opts.InternalDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(opts.InternalDomain)), "@")
	return &Resolver{
		opts:   opts,
		guests: guests,
		sso:    sso,
	}
}

// Resolve returns the identifier for actor, or for the guest behind sess when actor is nil.
// It never fails: every strategy falls back and the last resort is a random anonymous id.
func (r *Resolver) Resolve(ctx context.Context, actor *Actor, sess guest.Session) Identifier {
	if actor == nil {
		return r.resolveGuest(ctx, sess)
	}

	switch r.opts.Source {
	case SourceEmail:
		if email := actor.NormalizedEmail(); email != "" {
			return UserID(email)
		}
		slog.Warn("[Identity] Actor has no usable email, falling back to anonymous id",
			"actor_id", actor.ID, "source", r.opts.Source)

	case SourceSSOExternalID:
		if ssoID := r.lookupSSO(ctx, actor); ssoID != "" {
			return UserID(ssoID)
		}
		if email := actor.NormalizedEmail(); email != "" {
			return UserID(email)
		}
		slog.Warn("[Identity] Actor has neither SSO id nor email, falling back to anonymous id",
			"actor_id", actor.ID, "source", r.opts.Source)

	case SourceUseAnon:
		// handled by the fallback below

	case SourceNativeID:
		if actor.ID != "" {
			return UserID(actor.ID)
		}

	default:
		r.unknownSourceOnce.Do(func() {
			slog.Warn("[Identity] Unknown user_id_source, using native actor id",
				"source", string(r.opts.Source))
		})
		if actor.ID != "" {
			return UserID(actor.ID)
		}
	}

	return r.fallback(actor)
}

func (r *Resolver) resolveGuest(ctx context.Context, sess guest.Session) Identifier {
	if sess == nil {
		return AnonymousID(r.guests.FallbackID())
	}

	id, err := r.guests.SessionID(ctx, sess)
	if err != nil {
		slog.Warn("[Identity] Session guest id unavailable, using process fallback id",
			"session_id", sess.ID(), "error", err)
		return AnonymousID(r.guests.FallbackID())
	}
	return AnonymousID(id)
}

func (r *Resolver) lookupSSO(ctx context.Context, actor *Actor) string {
	if r.sso == nil {
		return strings.TrimSpace(actor.SSOExternalID)
	}

	id, ok, err := r.sso.SSOExternalID(ctx, actor.ID)
	if err != nil {
		slog.Warn("[Identity] SSO lookup failed, falling back to email",
			"actor_id", actor.ID, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(id)
}

// fallback is the last step of every chain: the deterministic anonymous id, else a random one.
func (r *Resolver) fallback(actor *Actor) Identifier {
	id, err := DeterministicAnonymousID(actor.ID, r.opts.Secret)
	switch {
	case err == nil:
		return AnonymousID(id)
	case errors.Is(err, ErrAnonymousIDOverflow):
		slog.Warn("[Identity] Actor id overflows anonymous id length, sending marked id",
			"actor_id", actor.ID, "anonymous_id", id)
		return AnonymousID(id)
	}

	forced := guest.NewToken(ErrorAnonymousPrefix, guest.TokenLength)
	slog.Error("[Identity] Could not derive any identifier for actor, check user_id_source configuration",
		"actor_id", actor.ID, "source", string(r.opts.Source), "anonymous_id", forced, "error", err)
	return AnonymousID(forced)
}

// Traits projects the actor onto identify traits. Empty values are omitted.
func (r *Resolver) Traits(actor *Actor) map[string]interface{} {
	if actor == nil {
		return nil
	}

	traits := map[string]interface{}{
		"internal": r.IsInternal(actor),
	}
	if actor.Name != "" {
		traits["name"] = actor.Name
	}
	if actor.Username != "" {
		traits["username"] = actor.Username
	}
	if email := actor.NormalizedEmail(); email != "" {
		traits["email"] = email
	}
	if !actor.CreatedAt.IsZero() {
		traits["created_at"] = actor.CreatedAt.UTC()
	}
	return traits
}

// IsInternal reports whether actor's email belongs to the configured internal domain.
// The domain must match whole labels: "a@corp.io" and "a@eu.corp.io" match "corp.io",
// "a@notcorp.io" does not.
func (r *Resolver) IsInternal(actor *Actor) bool {
	domain := r.opts.InternalDomain
	if domain == "" {
		return false
	}

	email := actor.NormalizedEmail()
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	host := email[at+1:]

	return host == domain || strings.HasSuffix(host, "."+domain)
}

// EmbedTraitEmail copies the actor's normalized email into context.traits.email so the collector
// can merge anonymous and identified activity. No-op without an actor or a usable email.
func EmbedTraitEmail(p *v1.Payload, actor *Actor) {
	email := actor.NormalizedEmail()
	if email == "" {
		return
	}

	c := p.EnsureContext()
	if c.Traits == nil {
		c.Traits = make(map[string]interface{})
	}
	c.Traits["email"] = email
}
