package tracking

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/segment-relay/internal/catalog"
	httperr "github.com/aevon-lab/segment-relay/internal/core/errors"
	"github.com/aevon-lab/segment-relay/internal/core/storage"
	"github.com/aevon-lab/segment-relay/internal/guest"
	"github.com/aevon-lab/segment-relay/internal/identity"
	"github.com/aevon-lab/segment-relay/internal/jobs"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgActorNotFound   = "Actor not found"
	msgActorLookup     = "Failed to load actor"
	msgQueueFull       = "Job queue is full, retry later"
	msgJobsUnavailable = "Job execution is not available"
)

// LifecycleRequest is the body of POST /v1/lifecycle.
type LifecycleRequest struct {
	Trigger    string                 `json:"trigger"`
	ActorID    string                 `json:"actor_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Context    struct {
		IP        string `json:"ip,omitempty"`
		UserAgent string `json:"user_agent,omitempty"`
	} `json:"context"`
}

// IdentifyJobRequest is the body of POST /v1/jobs/identify.
type IdentifyJobRequest struct {
	ActorID string `json:"actor_id"`
}

// requestError carries the structured HTTP error shape from a helper back to the handler.
type requestError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *requestError) Error() string {
	return e.message
}

// Handler is the HTTP binding of the Service and the job queue.
type Handler struct {
	svc              *Service
	actors           storage.ActorStore
	sessions         guest.Store // nil: guests are tracked with the process fallback id
	enqueuer         jobs.Enqueuer
	maxBodySizeBytes int
}

// NewHandler creates a Handler. sessions and enqueuer may be nil.
func NewHandler(svc *Service, actors storage.ActorStore, sessions guest.Store, enqueuer jobs.Enqueuer, maxBodySizeMB int) *Handler {
	if svc == nil {
		panic("tracking: service must not be nil")
	}
	if actors == nil {
		panic("tracking: actor store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	return &Handler{
		svc:              svc,
		actors:           actors,
		sessions:         sessions,
		enqueuer:         enqueuer,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the relay routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/lifecycle", h.LifecycleHandler)
	r.POST("/v1/jobs/identify", h.IdentifyJobHandler)
}

// LifecycleHandler accepts a host trigger. Delivery is asynchronous to the response.
func (h *Handler) LifecycleHandler(c *gin.Context) {
	var req LifecycleRequest
	if err := h.bind(c, &req); err != nil {
		writeError(c, err)
		return
	}

	if strings.TrimSpace(req.Trigger) == "" {
		writeError(c, &requestError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "trigger is required",
		})
		return
	}

	trigger := Trigger{
		Name:       req.Trigger,
		Session:    guest.Bind(h.sessions, req.SessionID),
		Properties: req.Properties,
		Request:    Request{IP: req.Context.IP, UserAgent: req.Context.UserAgent},
	}

	if req.ActorID != "" {
		actor, rerr := h.findActor(c, req.ActorID)
		if rerr != nil {
			writeError(c, rerr)
			return
		}
		trigger.Actor = actor
	}

	if err := h.svc.OnLifecycleEvent(c.Request.Context(), trigger); err != nil {
		if errors.Is(err, catalog.ErrUnknownTrigger) {
			slog.Warn("[Tracking] Unknown trigger", "trigger", req.Trigger)
			writeError(c, &requestError{
				statusCode: http.StatusNotFound,
				errorType:  httperr.HttpUnknownTriggerError,
				message:    err.Error(),
			})
			return
		}
		slog.Error("[Tracking] Trigger failed", "trigger", req.Trigger, "error", err)
		writeError(c, &requestError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to handle trigger",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// IdentifyJobHandler enqueues an identify job for one actor.
func (h *Handler) IdentifyJobHandler(c *gin.Context) {
	if h.enqueuer == nil {
		writeError(c, &requestError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpUnavailableError,
			message:    msgJobsUnavailable,
		})
		return
	}

	var req IdentifyJobRequest
	if err := h.bind(c, &req); err != nil {
		writeError(c, err)
		return
	}
	if strings.TrimSpace(req.ActorID) == "" {
		writeError(c, &requestError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "actor_id is required",
		})
		return
	}

	job := jobs.NewIdentify(req.ActorID)
	if err := h.enqueuer.Enqueue(c.Request.Context(), job); err != nil {
		switch {
		case errors.Is(err, jobs.ErrQueueFull):
			slog.Warn("[Tracking] Identify job rejected, queue full", "actor_id", req.ActorID)
			writeError(c, &requestError{
				statusCode: http.StatusServiceUnavailable,
				errorType:  httperr.HttpQueueFullError,
				message:    msgQueueFull,
			})
		case errors.Is(err, jobs.ErrPoolStopped):
			writeError(c, &requestError{
				statusCode: http.StatusServiceUnavailable,
				errorType:  httperr.HttpUnavailableError,
				message:    msgJobsUnavailable,
			})
		default:
			slog.Error("[Tracking] Failed to enqueue identify job", "actor_id", req.ActorID, "error", err)
			writeError(c, &requestError{
				statusCode: http.StatusInternalServerError,
				errorType:  httperr.HttpInternalError,
				message:    "Failed to enqueue job",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "job_id": job.ID.String()})
}

// bind reads at most maxBodySizeBytes and decodes the JSON body into dst.
func (h *Handler) bind(c *gin.Context, dst interface{}) *requestError {
	maxBytes := int64(h.maxBodySizeBytes)
	bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		slog.Error("[Tracking] Failed to read request body", "error", err)
		return &requestError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		return &requestError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err := c.ShouldBindJSON(dst); err != nil {
		slog.Warn("[Tracking] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return &requestError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return nil
}

func (h *Handler) findActor(c *gin.Context, id string) (*identity.Actor, *requestError) {
	actor, err := h.actors.FindActor(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &requestError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpActorNotFoundError,
			message:    msgActorNotFound,
			details:    map[string]interface{}{"actor_id": id},
		}
	}
	if err != nil {
		slog.Error("[Tracking] Actor lookup failed", "actor_id", id, "error", err)
		return nil, &requestError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgActorLookup,
		}
	}
	return actor, nil
}

// writeError serializes a requestError as the JSON HTTP response.
func writeError(c *gin.Context, err *requestError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
