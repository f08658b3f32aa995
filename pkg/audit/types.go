package audit

import (
	"time"
)

// EventType identifies what happened
type EventType string

const (
	EventTypeLogin          EventType = "auth.login"
	EventTypeLoginFailed    EventType = "auth.login_failed"
	EventTypeLogout         EventType = "auth.logout"
	EventTypeSessionExpired EventType = "auth.session_expired"
	EventTypeSessionRestore EventType = "auth.session_restore"

	EventTypeAccessDenied     EventType = "authz.access_denied"
	EventTypePermissionChange EventType = "authz.permission_change"
	EventTypeFundAccessChange EventType = "authz.fund_access_change"

	EventTypeUserCreate EventType = "admin.user_create"
	EventTypeUserUpdate EventType = "admin.user_update"
	EventTypeUserDelete EventType = "admin.user_delete"
)

// EventStatus is the outcome of an audited action
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType names the kind of object an event refers to
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypePage       ResourceType = "page"
	ResourceTypeFund       ResourceType = "fund"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeSession    ResourceType = "session"
)

// AuditEvent is one audit record
type AuditEvent struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID    *int64 `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Changes      *ChangeDetails         `json:"changes,omitempty"`
}

// ChangeDetails lists the tree paths an edit touched with their values
// before and after
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// SearchFilter narrows a search. Zero fields are ignored.
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID    *int64
	Username  string
	SessionID string

	EventTypes []EventType
	Status     EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// Stats summarizes audit rows since a point in time
type Stats struct {
	Total         int64                 `json:"total"`
	ByType        map[EventType]int64   `json:"by_type"`
	ByStatus      map[EventStatus]int64 `json:"by_status"`
	FailedLogins  int64                 `json:"failed_logins"`
	AccessDenials int64                 `json:"access_denials"`
	Since         time.Time             `json:"since"`
}

// RetentionPolicy controls pruning of old audit rows
type RetentionPolicy struct {
	MaxAge   time.Duration
	Schedule string
}

// DefaultRetentionPolicy keeps 90 days and prunes daily at 03:30
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxAge:   90 * 24 * time.Hour,
		Schedule: "30 3 * * *",
	}
}
