package v1

import (
	"errors"
	"fmt"
	"time"
)

// Operation names one of the collector calls the relay can issue.
type Operation string

const (
	OperationIdentify Operation = "identify"
	OperationTrack    Operation = "track"
	OperationPage     Operation = "page"
)

// Valid reports whether op is one of the known collector operations.
func (op Operation) Valid() bool {
	switch op {
	case OperationIdentify, OperationTrack, OperationPage:
		return true
	}
	return false
}

var (
	// ErrMissingIdentity is returned when a payload carries neither user_id nor anonymous_id.
	ErrMissingIdentity = errors.New("payload must carry user_id or anonymous_id")

	// ErrAmbiguousIdentity is returned when a payload carries both user_id and anonymous_id.
	ErrAmbiguousIdentity = errors.New("payload must not carry both user_id and anonymous_id")
)

// Payload is the logical shape of one outbound collector call.
// The transport owns the actual wire encoding; this struct owns which fields exist.
type Payload struct {
	// UserID and AnonymousID are mutually exclusive. Exactly one is set on a valid payload.
	UserID      string `json:"user_id,omitempty"`
	AnonymousID string `json:"anonymous_id,omitempty"`

	// Event is the track event name (e.g. "Signed Up"). Required for track.
	Event string `json:"event,omitempty"`

	// Name is the page name for page calls. Optional.
	Name string `json:"name,omitempty"`

	// Traits are only sent with identify calls.
	Traits map[string]interface{} `json:"traits,omitempty"`

	// Properties carry event-specific data for track and page calls.
	Properties map[string]interface{} `json:"properties,omitempty"`

	Context *Context `json:"context,omitempty"`

	// Timestamp is when the host observed the event.
	Timestamp time.Time `json:"timestamp"`
}

// Context is the optional side-channel block sent alongside the main fields.
type Context struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	// Traits embedded in the context are used by the collector for identity merging only,
	// they are not stored as primary user traits.
	Traits map[string]interface{} `json:"traits,omitempty"`
}

// EnsureContext returns the payload context, allocating it on first use.
func (p *Payload) EnsureContext() *Context {
	if p.Context == nil {
		p.Context = &Context{}
	}
	return p.Context
}

// Validate checks the identity exclusivity invariant and the fields required by op.
func (p *Payload) Validate(op Operation) error {
	hasUser := p.UserID != ""
	hasAnon := p.AnonymousID != ""

	if !hasUser && !hasAnon {
		return ErrMissingIdentity
	}
	if hasUser && hasAnon {
		return ErrAmbiguousIdentity
	}

	switch op {
	case OperationTrack:
		if p.Event == "" {
			return fmt.Errorf("event is required for %s", op)
		}
	case OperationIdentify, OperationPage:
	default:
		return fmt.Errorf("unknown operation %q", op)
	}

	return nil
}
