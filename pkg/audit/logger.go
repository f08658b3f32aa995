package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/backoffice/pkg/contextkeys"
	"github.com/platinummonkey/backoffice/pkg/observability"
)

// Logger is an audit sink
type Logger interface {
	// Log persists one event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes and releases the sink
	Close() error
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *AuditEvent) error { return nil }
func (noOpLogger) Close() error                           { return nil }

// NoOp returns a Logger that discards events
func NoOp() Logger {
	return noOpLogger{}
}

// WithLogger adds an audit recorder to the context
func WithLogger(ctx context.Context, rec *Recorder) context.Context {
	return contextkeys.WithAuditLogger(ctx, rec)
}

// FromContext retrieves the audit recorder from context. The zero Recorder
// it falls back to discards events.
func FromContext(ctx context.Context) *Recorder {
	if rec, ok := ctx.Value(contextkeys.AuditLoggerKey).(*Recorder); ok && rec != nil {
		return rec
	}
	return &Recorder{}
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
	method    string
	path      string
}

// WithRequest stores the client address and request line of r on ctx so
// events recorded while serving r carry them.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{
		ip:        ClientIP(r),
		userAgent: r.UserAgent(),
		method:    r.Method,
		path:      r.URL.Path,
	})
}

// ClientIP returns the originating client address, preferring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Recorder builds events from request context and hands them to a sink.
// Sink failures are logged, never returned: auditing must not break the
// action being audited.
type Recorder struct {
	sink    Logger
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewRecorder creates a recorder. metrics and logger may be nil.
func NewRecorder(sink Logger, metrics *observability.Metrics, logger *observability.Logger) *Recorder {
	if sink == nil {
		sink = NoOp()
	}
	return &Recorder{sink: sink, metrics: metrics, logger: logger, now: time.Now}
}

// Close closes the underlying sink
func (r *Recorder) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

func (r *Recorder) base(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	event := &AuditEvent{
		Timestamp: now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		SessionID: contextkeys.GetSessionID(ctx),
		Username:  contextkeys.GetUserID(ctx),
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		event.IPAddress = info.ip
		event.UserAgent = info.userAgent
		event.Method = info.method
		event.Path = info.path
	}
	return event
}

// Record sends a fully built event to the sink
func (r *Recorder) Record(ctx context.Context, event *AuditEvent) {
	if r == nil || r.sink == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType), string(event.Status)).Inc()
	}
	if err := r.sink.Log(ctx, event); err != nil && r.logger != nil {
		r.logger.WithError(err).
			WithField("event_type", string(event.EventType)).
			Error("failed to record audit event")
	}
}

// LogAuthentication records a login, logout or session lifecycle event
func (r *Recorder) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) {
	if r == nil || r.sink == nil {
		return
	}
	event := r.base(ctx, eventType, status)
	event.UserID = userID
	if username != "" {
		event.Username = username
	}
	event.ResourceType = ResourceTypeSession
	event.Message = message
	r.Record(ctx, event)
}

// LogAuthorization records an access decision on a resource
func (r *Recorder) LogAuthorization(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, status EventStatus, message string) {
	if r == nil || r.sink == nil {
		return
	}
	event := r.base(ctx, eventType, status)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	r.Record(ctx, event)
}

// LogDataMutation records a change made on behalf of the current user
func (r *Recorder) LogDataMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) {
	if r == nil || r.sink == nil {
		return
	}
	event := r.base(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	r.Record(ctx, event)
}

// LogFailure records a failed action with its error
func (r *Recorder) LogFailure(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, err error) {
	if r == nil || r.sink == nil {
		return
	}
	event := r.base(ctx, eventType, EventStatusFailure)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	r.Record(ctx, event)
}
