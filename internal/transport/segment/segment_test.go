package segment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/analytics-go/v3"
	"github.com/stretchr/testify/require"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
)

func TestMessageConversion(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &v1.Payload{
		UserID:     "alice@example.com",
		Event:      "Post Created",
		Name:       "Topic",
		Traits:     map[string]interface{}{"name": "Alice"},
		Properties: map[string]interface{}{"slug": "hello"},
		Context: &v1.Context{
			IP:        "203.0.113.9",
			UserAgent: "curl/8",
			Traits:    map[string]interface{}{"email": "alice@example.com"},
		},
		Timestamp: ts,
	}

	identify := IdentifyMessage(p)
	require.Equal(t, "alice@example.com", identify.UserId)
	require.Empty(t, identify.AnonymousId)
	require.Equal(t, analytics.Traits{"name": "Alice"}, identify.Traits)
	require.Equal(t, ts, identify.Timestamp)
	require.True(t, identify.Context.IP.Equal(net.ParseIP("203.0.113.9")))
	require.Equal(t, "curl/8", identify.Context.UserAgent)
	require.Equal(t, "alice@example.com", identify.Context.Traits["email"])

	track := TrackMessage(p)
	require.Equal(t, "Post Created", track.Event)
	require.Equal(t, analytics.Properties{"slug": "hello"}, track.Properties)
	require.NoError(t, track.Validate())

	page := PageMessage(&v1.Payload{AnonymousID: "g123", Name: "Home"})
	require.Equal(t, "g123", page.AnonymousId)
	require.Equal(t, "Home", page.Name)
	require.Nil(t, page.Context)
}

func TestMessageContext_InvalidIPDropped(t *testing.T) {
	ctx := messageContext(&v1.Context{IP: "not-an-ip", UserAgent: "ua"})
	require.Nil(t, ctx.IP)
	require.Equal(t, "ua", ctx.UserAgent)
}

func TestOperationOf(t *testing.T) {
	require.Equal(t, v1.OperationIdentify, operationOf(analytics.Identify{}))
	require.Equal(t, v1.OperationTrack, operationOf(&analytics.Track{}))
	require.Equal(t, v1.OperationPage, operationOf(analytics.Page{}))
	require.Equal(t, v1.Operation("analytics.Alias"), operationOf(analytics.Alias{}))
}

func TestCallback_FailureReachesHandler(t *testing.T) {
	var gotOp v1.Operation
	var gotErr error
	cb := callback{onError: func(op v1.Operation, err error) {
		gotOp, gotErr = op, err
	}}

	boom := errors.New("502 bad gateway")
	cb.Failure(analytics.Track{Event: "x", UserId: "1"}, boom)
	require.Equal(t, v1.OperationTrack, gotOp)
	require.ErrorIs(t, gotErr, boom)

	require.NotPanics(t, func() { callback{}.Failure(analytics.Track{}, boom) })
}

func TestNew_RequiresWriteKey(t *testing.T) {
	_, err := New("  ", Options{}, nil)
	require.Error(t, err)
}

type batchRecorder struct {
	mu      sync.Mutex
	paths   []string
	users   []string
	batches [][]map[string]interface{}
}

func (r *batchRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	user, _, _ := req.BasicAuth()

	var envelope struct {
		Batch []map[string]interface{} `json:"batch"`
	}
	_ = json.Unmarshal(body, &envelope)

	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.users = append(r.users, user)
	r.batches = append(r.batches, envelope.Batch)
	r.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func TestTransport_PostsBatchOnClose(t *testing.T) {
	rec := &batchRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	var asyncErrs []error
	tr, err := New("wk-123", Options{
		Endpoint:       srv.URL,
		BatchSize:      10,
		FlushInterval:  time.Hour,
		RequestTimeout: 2 * time.Second,
	}, func(_ v1.Operation, err error) { asyncErrs = append(asyncErrs, err) })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.Identify(ctx, &v1.Payload{UserID: "alice@example.com", Traits: map[string]interface{}{"internal": false}}))
	require.NoError(t, tr.Track(ctx, &v1.Payload{AnonymousID: "g000000000000000000000000000000000", Event: "Signed Up"}))

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Close(closeCtx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.paths)
	require.Equal(t, "/v1/batch", rec.paths[0])
	require.Equal(t, "wk-123", rec.users[0])

	var sent []map[string]interface{}
	for _, b := range rec.batches {
		sent = append(sent, b...)
	}
	require.Len(t, sent, 2)
	require.Equal(t, "identify", sent[0]["type"])
	require.Equal(t, "alice@example.com", sent[0]["userId"])
	require.Equal(t, "track", sent[1]["type"])
	require.Equal(t, "Signed Up", sent[1]["event"])
	require.Empty(t, asyncErrs)
}

func TestTransport_EnqueueAfterCloseFails(t *testing.T) {
	srv := httptest.NewServer(&batchRecorder{})
	defer srv.Close()

	tr, err := New("wk", Options{Endpoint: srv.URL, FlushInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Close(context.Background()))

	err = tr.Track(context.Background(), &v1.Payload{UserID: "1", Event: "late"})
	require.ErrorIs(t, err, analytics.ErrClosed)
}
