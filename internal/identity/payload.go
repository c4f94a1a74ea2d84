package identity

import (
	"context"
	"time"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/guest"
)

// IdentifyPayload builds the identify call for actor: resolved identifier, traits, the actor's
// recorded IP and the embedded trait email.
func (r *Resolver) IdentifyPayload(ctx context.Context, actor *Actor, sess guest.Session, now time.Time) *v1.Payload {
	p := &v1.Payload{
		Traits:    r.Traits(actor),
		Timestamp: now.UTC(),
	}
	r.Resolve(ctx, actor, sess).Apply(p)

	if actor != nil && actor.IPAddress != "" {
		p.EnsureContext().IP = actor.IPAddress
	}
	EmbedTraitEmail(p, actor)
	return p
}
