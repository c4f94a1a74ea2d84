package guest

import "context"

// SessionKey is the session slot holding the guest identifier.
const SessionKey = "segment_guest_id"

// Session is one browsing session's key/value storage. The relay never owns it.
type Session interface {
	// ID identifies the session. Used to de-duplicate concurrent guest id generation.
	ID() string

	// Get returns the value for key; ok is false when the key is unset.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key for the session's lifetime.
	Set(ctx context.Context, key, value string) error
}

// Store persists session-scoped values for many sessions.
type Store interface {
	Load(ctx context.Context, sessionID, key string) (string, bool, error)
	Save(ctx context.Context, sessionID, key, value string) error
}

// Bind returns the Session view of sessionID inside store.
// An empty sessionID yields nil, meaning "no session".
func Bind(store Store, sessionID string) Session {
	if store == nil || sessionID == "" {
		return nil
	}
	return &boundSession{store: store, id: sessionID}
}

type boundSession struct {
	store Store
	id    string
}

func (s *boundSession) ID() string { return s.id }

func (s *boundSession) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Load(ctx, s.id, key)
}

func (s *boundSession) Set(ctx context.Context, key, value string) error {
	return s.store.Save(ctx, s.id, key, value)
}
