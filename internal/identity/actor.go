package identity

import (
	"strings"
	"time"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
)

// Actor is the host application's authenticated identity, as read by the relay.
type Actor struct {
	ID            string
	Name          string
	Username      string
	Email         string
	CreatedAt     time.Time
	SSOExternalID string // empty when the actor has no linked SSO record
	IPAddress     string // last known request IP, optional
}

// NormalizedEmail returns the trimmed, lower-cased email, or "" when unusable.
func (a *Actor) NormalizedEmail() string {
	if a == nil {
		return ""
	}
	return normalizeEmail(a.Email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Kind discriminates the two identifier variants.
type Kind int

const (
	KindUser Kind = iota + 1
	KindAnonymous
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Identifier is the result of identity resolution: a user id or an anonymous id, never both.
type Identifier struct {
	Kind  Kind
	Value string
}

// UserID builds a user identifier.
func UserID(v string) Identifier { return Identifier{Kind: KindUser, Value: v} }

// AnonymousID builds an anonymous identifier.
func AnonymousID(v string) Identifier { return Identifier{Kind: KindAnonymous, Value: v} }

// Apply writes the identifier into p, clearing the other identity field.
func (id Identifier) Apply(p *v1.Payload) {
	switch id.Kind {
	case KindUser:
		p.UserID = id.Value
		p.AnonymousID = ""
	case KindAnonymous:
		p.AnonymousID = id.Value
		p.UserID = ""
	default:
		p.UserID = ""
		p.AnonymousID = ""
	}
}

// UserIDSource selects how an authenticated actor maps onto the collector's user id.
type UserIDSource string

const (
	SourceEmail         UserIDSource = "email"
	SourceSSOExternalID UserIDSource = "sso_external_id"
	SourceUseAnon       UserIDSource = "use_anon"
	SourceNativeID      UserIDSource = "discourse_id"
)

// ParseUserIDSource maps a configuration string onto a source. ok is false for unknown values.
func ParseUserIDSource(s string) (UserIDSource, bool) {
	src := UserIDSource(strings.ToLower(strings.TrimSpace(s)))
	switch src {
	case SourceEmail, SourceSSOExternalID, SourceUseAnon, SourceNativeID:
		return src, true
	}
	return src, false
}
