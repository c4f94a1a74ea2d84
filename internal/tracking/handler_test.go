package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/catalog"
	httperr "github.com/aevon-lab/segment-relay/internal/core/errors"
	"github.com/aevon-lab/segment-relay/internal/core/storage/memory"
	"github.com/aevon-lab/segment-relay/internal/guest"
	"github.com/aevon-lab/segment-relay/internal/identity"
	"github.com/aevon-lab/segment-relay/internal/jobs"
	storagemocks "github.com/aevon-lab/segment-relay/internal/mocks/storage"
)

type fakeEnqueuer struct {
	err  error
	jobs []jobs.Job
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type handlerFixture struct {
	router   *gin.Engine
	spy      *spyDispatcher
	enqueuer *fakeEnqueuer
	sessions *guest.MemoryStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	actors, err := memory.NewActorStore(identity.Actor{ID: "5", Email: "frank@example.com"})
	require.NoError(t, err)

	spy := &spyDispatcher{}
	enq := &fakeEnqueuer{}
	sessions := guest.NewMemoryStore(32)

	h := NewHandler(newTestService(t, identity.SourceEmail, spy), actors, sessions, enq, 1)
	r := gin.New()
	h.RegisterRoutes(r)

	return &handlerFixture{router: r, spy: spy, enqueuer: enq, sessions: sessions}
}

func (f *handlerFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	return errResp
}

func TestLifecycleHandler_Accepted(t *testing.T) {
	f := newHandlerFixture(t)

	resp := f.post("/v1/lifecycle", `{
		"trigger": "topic.created",
		"actor_id": "5",
		"properties": {"slug": "hello", "title": "Hello", "category": 4},
		"context": {"ip": "192.0.2.10", "user_agent": "curl/8"}
	}`)

	require.Equal(t, http.StatusAccepted, resp.Code)
	calls := f.spy.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, v1.OperationTrack, calls[0].op)
	require.Equal(t, "frank@example.com", calls[0].p.UserID)
	require.Equal(t, "Topic Created", calls[0].p.Event)
	require.Equal(t, map[string]interface{}{"slug": "hello", "title": "Hello"}, calls[0].p.Properties)
	require.Equal(t, "192.0.2.10", calls[0].p.Context.IP)
	require.Equal(t, "curl/8", calls[0].p.Context.UserAgent)
}

func TestLifecycleHandler_GuestSessionPersisted(t *testing.T) {
	f := newHandlerFixture(t)

	resp := f.post("/v1/lifecycle", `{"trigger": "page.viewed", "session_id": "abc"}`)
	require.Equal(t, http.StatusAccepted, resp.Code)

	stored, ok, err := f.sessions.Load(context.Background(), "abc", guest.SessionKey)
	require.NoError(t, err)
	require.True(t, ok)

	calls := f.spy.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, stored, calls[0].p.AnonymousID)
}

func TestLifecycleHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantType string
	}{
		{name: "malformed json", body: "not json", wantCode: http.StatusBadRequest, wantType: httperr.HttpInvalidJsonError},
		{name: "missing trigger", body: `{"actor_id": "5"}`, wantCode: http.StatusBadRequest, wantType: httperr.HttpValidationError},
		{name: "unknown trigger", body: `{"trigger": "invoice.paid"}`, wantCode: http.StatusNotFound, wantType: httperr.HttpUnknownTriggerError},
		{name: "unknown actor", body: `{"trigger": "topic.created", "actor_id": "999"}`, wantCode: http.StatusNotFound, wantType: httperr.HttpActorNotFoundError},
		{name: "oversized body", body: `{"trigger": "` + strings.Repeat("x", 1024*1024) + `"}`, wantCode: http.StatusRequestEntityTooLarge, wantType: httperr.HttpInvalidJsonError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			resp := f.post("/v1/lifecycle", tc.body)
			require.Equal(t, tc.wantCode, resp.Code)
			require.Equal(t, tc.wantType, decodeError(t, resp).ErrorType)
			require.Empty(t, f.spy.recorded())
		})
	}
}

func TestLifecycleHandler_ActorStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	actors := storagemocks.NewActorStore(t)
	actors.On("FindActor", mock.Anything, "5").Return(nil, errors.New("db down")).Once()

	spy := &spyDispatcher{}
	h := NewHandler(newTestService(t, identity.SourceEmail, spy), actors, nil, nil, 1)
	r := gin.New()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/lifecycle", strings.NewReader(`{"trigger": "topic.created", "actor_id": "5"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Equal(t, httperr.HttpInternalError, decodeError(t, resp).ErrorType)
	require.Empty(t, spy.recorded())
}

func TestIdentifyJobHandler(t *testing.T) {
	f := newHandlerFixture(t)

	resp := f.post("/v1/jobs/identify", `{"actor_id": "5"}`)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "accepted", body["status"])
	require.Len(t, f.enqueuer.jobs, 1)
	require.Equal(t, jobs.NameIdentify, f.enqueuer.jobs[0].Name)
	require.Equal(t, "5", f.enqueuer.jobs[0].ActorID)
	require.Equal(t, f.enqueuer.jobs[0].ID.String(), body["job_id"])
}

func TestIdentifyJobHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		enqErr   error
		wantCode int
		wantType string
	}{
		{name: "missing actor id", body: `{}`, wantCode: http.StatusBadRequest, wantType: httperr.HttpValidationError},
		{name: "queue full", body: `{"actor_id": "5"}`, enqErr: jobs.ErrQueueFull, wantCode: http.StatusServiceUnavailable, wantType: httperr.HttpQueueFullError},
		{name: "pool stopped", body: `{"actor_id": "5"}`, enqErr: jobs.ErrPoolStopped, wantCode: http.StatusServiceUnavailable, wantType: httperr.HttpUnavailableError},
		{name: "other failure", body: `{"actor_id": "5"}`, enqErr: errors.New("broker down"), wantCode: http.StatusInternalServerError, wantType: httperr.HttpInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.enqueuer.err = tc.enqErr

			resp := f.post("/v1/jobs/identify", tc.body)
			require.Equal(t, tc.wantCode, resp.Code)
			require.Equal(t, tc.wantType, decodeError(t, resp).ErrorType)
		})
	}
}

func TestIdentifyJobHandler_NoEnqueuer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	actors, err := memory.NewActorStore()
	require.NoError(t, err)
	h := NewHandler(NewService(catalog.Default(), identity.NewResolver(identity.Options{}, guest.NewRegistry(), nil), &spyDispatcher{}), actors, nil, nil, 0)
	r := gin.New()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/identify", strings.NewReader(`{"actor_id": "1"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
