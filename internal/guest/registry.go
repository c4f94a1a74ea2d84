// Package guest manages anonymous identifiers for requests without an authenticated actor.
//
// Two lifecycles exist: a per-session guest id stored in the session under SessionKey and
// reused for the session's lifetime, and one process-wide fallback id shared by every caller
// that has no session at all (background jobs, session-less requests).
package guest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// GuestPrefix starts every generated guest id.
const GuestPrefix = "g"

// sessionFlightTimeout bounds the shared read-generate-store of a session's guest id.
const sessionFlightTimeout = 5 * time.Second

// Registry hands out guest ids. Construct one per process and share it.
type Registry struct {
	newToken func() string

	fallbackOnce sync.Once
	fallback     string

	sessionGroup singleflight.Group // Dedupe concurrent first generation per session
}

// NewRegistry creates a Registry generating "g"-prefixed 36 character tokens.
func NewRegistry() *Registry {
	return &Registry{
		newToken: func() string { return NewToken(GuestPrefix, TokenLength) },
	}
}

// FallbackID returns the process-wide anonymous id, generating it on first use.
// Every caller observes the same value.
func (r *Registry) FallbackID() string {
	r.fallbackOnce.Do(func() {
		r.fallback = r.newToken()
	})
	return r.fallback
}

// SessionID returns the guest id stored in sess, generating and storing one if absent.
// Concurrent calls for the same session id converge on a single generated value.
func (r *Registry) SessionID(ctx context.Context, sess Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("guest: session is nil")
	}

	if id, ok, err := sess.Get(ctx, SessionKey); err != nil {
		return "", fmt.Errorf("read guest id: %w", err)
	} else if ok && id != "" {
		return id, nil
	}

	// The flight is shared by every caller of this session, so it must not die with the first one.
	flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionFlightTimeout)
	defer cancel()

	result, err, _ := r.sessionGroup.Do(sess.ID(), func() (interface{}, error) {
		// Double-check after winning the flight; another request may have stored it.
		if id, ok, err := sess.Get(flightCtx, SessionKey); err != nil {
			return "", fmt.Errorf("read guest id: %w", err)
		} else if ok && id != "" {
			return id, nil
		}

		id := r.newToken()
		if err := sess.Set(flightCtx, SessionKey, id); err != nil {
			return "", fmt.Errorf("store guest id: %w", err)
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}
