package errors

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpValidationError     = "validation_failed"
	HttpUnknownTriggerError = "unknown_trigger"
	HttpActorNotFoundError  = "actor_not_found"
	HttpQueueFullError      = "queue_full"
	HttpUnavailableError    = "unavailable"
)

// ErrorResponse is the error response body for relay API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
