// Package notify turns failed API calls into user-facing notices and hands
// them to a sink.
package notify

import (
	"context"
	"strings"
	"time"

	"expensetracker/internal/apierr"
	"expensetracker/internal/cache"
	"expensetracker/internal/log"
)

const (
	SeverityError = "error"

	summaryUnexpected = "Unexpected Error"
	summaryError      = "Error"

	lifeUnexpected = 10 * time.Second
	lifeDefault    = 3 * time.Second
)

// Notice is one toast-style message.
type Notice struct {
	Severity string
	Summary  string
	Detail   string
	TraceID  string
	// Source names the store or component that failed.
	Source string
	Life   time.Duration
}

// Sink delivers notices.
type Sink interface {
	Send(ctx context.Context, n Notice) error
}

// Reporter converts failures to notices and forwards them to a sink,
// dropping repeats of one failed request seen within the dedupe TTL.
type Reporter struct {
	sink   Sink
	seen   cache.Cache[struct{}]
	logger *log.Logger
}

// NewReporter creates a Reporter. seen may be nil to disable de-duplication.
func NewReporter(sink Sink, seen cache.Cache[struct{}], logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reporter{
		sink:   sink,
		seen:   seen,
		logger: logger.WithComponent(log.ComponentNotify),
	}
}

// Notices builds the notices for err: one per message. A 500 is shown as an
// unexpected error for longer and without a trace id.
func Notices(source string, err *apierr.Error) []Notice {
	if err == nil {
		return nil
	}
	msgs := apierr.Messages(err)
	out := make([]Notice, 0, len(msgs))
	for _, m := range msgs {
		n := Notice{
			Severity: SeverityError,
			Summary:  summaryError,
			Detail:   m,
			Source:   source,
			Life:     lifeDefault,
		}
		if err.Status == 500 {
			n.Summary = summaryUnexpected
			n.Life = lifeUnexpected
		} else {
			n.TraceID = err.TraceID()
		}
		out = append(out, n)
	}
	return out
}

// Report sends the notices for err. Repeats of the same failed request
// within the dedupe TTL are dropped; failures without a request id, such as
// local ones, are always sent. Sink failures are logged, not returned.
func (r *Reporter) Report(ctx context.Context, source string, err *apierr.Error) {
	for _, n := range Notices(source, err) {
		if r.seen != nil && err.RequestID != "" && !r.seen.SetIfAbsent(dedupeKey(err.RequestID, n), struct{}{}) {
			r.logger.DebugContext(ctx, "Duplicate notice dropped",
				"source", source, "detail", n.Detail, log.FieldRequestID, err.RequestID)
			continue
		}
		if sendErr := r.sink.Send(ctx, n); sendErr != nil {
			r.logger.ErrorContext(ctx, "Failed to deliver notice", log.FieldError, sendErr, "source", source)
		}
	}
}

func dedupeKey(requestID string, n Notice) string {
	return strings.Join([]string{requestID, n.Source, n.Summary, n.Detail, n.TraceID}, "\x00")
}
