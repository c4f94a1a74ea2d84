package segment

import (
	"fmt"
	"log/slog"

	"github.com/segmentio/analytics-go/v3"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/dispatch"
)

// slogLogger routes analytics-go diagnostics to slog.
type slogLogger struct{}

func (slogLogger) Logf(format string, args ...interface{}) {
	slog.Debug("[Segment] " + fmt.Sprintf(format, args...))
}

func (slogLogger) Errorf(format string, args ...interface{}) {
	slog.Error("[Segment] " + fmt.Sprintf(format, args...))
}

// callback forwards batch failures to the dispatcher.
type callback struct {
	onError dispatch.ErrorHandler
}

func (callback) Success(analytics.Message) {}

func (c callback) Failure(msg analytics.Message, err error) {
	if c.onError == nil {
		return
	}
	c.onError(operationOf(msg), fmt.Errorf("segment delivery: %w", err))
}

func operationOf(msg analytics.Message) v1.Operation {
	switch msg.(type) {
	case analytics.Identify, *analytics.Identify:
		return v1.OperationIdentify
	case analytics.Track, *analytics.Track:
		return v1.OperationTrack
	case analytics.Page, *analytics.Page:
		return v1.OperationPage
	}
	return v1.Operation(fmt.Sprintf("%T", msg))
}
