package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/catalog"
	"github.com/aevon-lab/segment-relay/internal/guest"
	"github.com/aevon-lab/segment-relay/internal/identity"
)

type call struct {
	op v1.Operation
	p  *v1.Payload
}

type spyDispatcher struct {
	mu       sync.Mutex
	disabled bool
	calls    []call
}

func (s *spyDispatcher) Enabled() bool { return !s.disabled }

func (s *spyDispatcher) Call(_ context.Context, op v1.Operation, p *v1.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{op: op, p: p})
}

func (s *spyDispatcher) recorded() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

var fixedNow = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, source identity.UserIDSource, d Dispatcher) *Service {
	t.Helper()
	resolver := identity.NewResolver(identity.Options{
		Source:         source,
		InternalDomain: "corp.io",
		Secret:         "test-secret",
	}, guest.NewRegistry(), nil)

	svc := NewService(catalog.Default(), resolver, d)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestOnLifecycleEvent_UserCreated(t *testing.T) {
	spy := &spyDispatcher{}
	svc := newTestService(t, identity.SourceEmail, spy)

	actor := &identity.Actor{
		ID:        "1",
		Name:      "Erin",
		Username:  "erin",
		Email:     "Erin@Corp.io",
		CreatedAt: fixedNow.Add(-time.Hour),
		IPAddress: "198.51.100.1",
	}
	require.NoError(t, svc.OnLifecycleEvent(context.Background(), Trigger{
		Name:    catalog.TriggerUserCreated,
		Actor:   actor,
		Request: Request{IP: "203.0.113.50", UserAgent: "Mozilla/5.0"},
	}))

	calls := spy.recorded()
	require.Len(t, calls, 2)

	identify := calls[0]
	require.Equal(t, v1.OperationIdentify, identify.op)
	require.Equal(t, "erin@corp.io", identify.p.UserID)
	require.Equal(t, true, identify.p.Traits["internal"])
	require.Equal(t, "198.51.100.1", identify.p.Context.IP)
	require.Empty(t, identify.p.Context.UserAgent)
	require.Equal(t, fixedNow, identify.p.Timestamp)

	track := calls[1]
	require.Equal(t, v1.OperationTrack, track.op)
	require.Equal(t, "Signed Up", track.p.Event)
	require.Equal(t, "erin@corp.io", track.p.UserID)
	require.Equal(t, "203.0.113.50", track.p.Context.IP)
	require.Equal(t, "Mozilla/5.0", track.p.Context.UserAgent)
	require.Equal(t, "erin@corp.io", track.p.Context.Traits["email"])
	require.Nil(t, track.p.Traits)
}

func TestOnLifecycleEvent_PostCreatedFiltersProperties(t *testing.T) {
	spy := &spyDispatcher{}
	svc := newTestService(t, identity.SourceNativeID, spy)

	require.NoError(t, svc.OnLifecycleEvent(context.Background(), Trigger{
		Name:  catalog.TriggerPostCreated,
		Actor: &identity.Actor{ID: "77"},
		Properties: map[string]interface{}{
			"slug":  "welcome",
			"title": "Welcome",
			"url":   "/t/welcome/1",
			"raw":   "full post body",
		},
	}))

	calls := spy.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "77", calls[0].p.UserID)
	require.Equal(t, map[string]interface{}{"slug": "welcome", "title": "Welcome", "url": "/t/welcome/1"}, calls[0].p.Properties)
	require.Nil(t, calls[0].p.Context)
}

func TestOnLifecycleEvent_GuestPageViewUsesSessionID(t *testing.T) {
	spy := &spyDispatcher{}
	svc := newTestService(t, identity.SourceEmail, spy)
	store := guest.NewMemoryStore(16)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.OnLifecycleEvent(ctx, Trigger{
			Name:       catalog.TriggerPageViewed,
			Session:    guest.Bind(store, "sess-a"),
			Properties: map[string]interface{}{"name": "Latest", "path": "/latest"},
		}))
	}

	calls := spy.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, v1.OperationPage, calls[0].op)
	require.Equal(t, "Latest", calls[0].p.Name)
	require.Empty(t, calls[0].p.UserID)
	require.Len(t, calls[0].p.AnonymousID, guest.TokenLength)
	require.Equal(t, calls[0].p.AnonymousID, calls[1].p.AnonymousID)
}

func TestOnLifecycleEvent_IdentifyWithoutActorSkipped(t *testing.T) {
	spy := &spyDispatcher{}
	svc := newTestService(t, identity.SourceEmail, spy)

	require.NoError(t, svc.OnLifecycleEvent(context.Background(), Trigger{Name: catalog.TriggerUserCreated}))

	calls := spy.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, v1.OperationTrack, calls[0].op)
	require.NotEmpty(t, calls[0].p.AnonymousID)
}

func TestOnLifecycleEvent_UnknownTriggerAndDisabled(t *testing.T) {
	spy := &spyDispatcher{}
	svc := newTestService(t, identity.SourceEmail, spy)

	err := svc.OnLifecycleEvent(context.Background(), Trigger{Name: "invoice.paid"})
	require.ErrorIs(t, err, catalog.ErrUnknownTrigger)

	spy.disabled = true
	require.NoError(t, svc.OnLifecycleEvent(context.Background(), Trigger{
		Name:  catalog.TriggerTopicCreated,
		Actor: &identity.Actor{ID: "1"},
	}))
	require.Empty(t, spy.recorded())
}

func TestOnLifecycleEvent_EveryPayloadHasOneIdentity(t *testing.T) {
	spy := &spyDispatcher{}
	ctx := context.Background()
	actors := []*identity.Actor{nil, {ID: "1"}, {ID: "2", Email: "x@y.z"}, {}}

	for _, src := range []identity.UserIDSource{identity.SourceEmail, identity.SourceUseAnon, identity.SourceSSOExternalID, identity.SourceNativeID} {
		svc := newTestService(t, src, spy)
		for _, a := range actors {
			for _, trig := range catalog.Default().Triggers() {
				require.NoError(t, svc.OnLifecycleEvent(ctx, Trigger{Name: trig, Actor: a}))
			}
		}
	}

	for _, c := range spy.recorded() {
		require.NoError(t, c.p.Validate(c.op))
	}
}
