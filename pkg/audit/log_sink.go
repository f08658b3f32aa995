package audit

import (
	"context"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

// LogSink writes audit events as structured log lines. It backs deployments
// without an audit database and mirrors DB writes to the log stream.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink over logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "audit")}
}

// Log emits one line per event. Denied and failed events log at warn.
func (s *LogSink) Log(_ context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	optional := map[string]string{
		"username":      event.Username,
		"session_id":    event.SessionID,
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
		"request_id":    event.RequestID,
		"ip_address":    event.IPAddress,
		"path":          event.Path,
		"error_message": event.ErrorMessage,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	entry := s.logger.WithFields(fields)
	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	if event.Status == EventStatusSuccess {
		entry.Info(msg)
	} else {
		entry.Warn(msg)
	}
	return nil
}

// Close is a no-op
func (s *LogSink) Close() error {
	return nil
}
