package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Dialect selects the DDL for the audit table
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

var schemas = map[Dialect]string{
	DialectPostgres: `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		username VARCHAR(255),
		session_id VARCHAR(64),
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		changes JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_username ON audit_logs(username);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
	`,
	DialectSQLite: `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		user_id INTEGER,
		username TEXT,
		session_id TEXT,
		resource_type TEXT,
		resource_id TEXT,
		ip_address TEXT,
		user_agent TEXT,
		request_id TEXT,
		method TEXT,
		path TEXT,
		message TEXT,
		error_message TEXT,
		metadata TEXT,
		changes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_username ON audit_logs(username);
	`,
}

const selectColumns = `id, timestamp, event_type, status, user_id, username, session_id,
	resource_type, resource_id, ip_address, user_agent, request_id, method, path,
	message, error_message, metadata, changes`

// DBLogger persists audit events in the audit_logs table
type DBLogger struct {
	db      *sql.DB
	dialect Dialect
}

// NewDBLogger creates the audit_logs table if needed and returns a logger
// writing to it
func NewDBLogger(db *sql.DB, dialect Dialect) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	schema, ok := schemas[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported audit dialect %q", dialect)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return &DBLogger{db: db, dialect: dialect}, nil
}

// DB returns the underlying handle
func (l *DBLogger) DB() *sql.DB {
	return l.db
}

// Log inserts event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	metadata, err := jsonColumn(event.Metadata, len(event.Metadata) > 0)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	changes, err := jsonColumn(event.Changes, event.Changes != nil)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, username, session_id,
			resource_type, resource_id,
			ip_address, user_agent, request_id, method, path,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17
		) RETURNING id`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp.UTC(), string(event.EventType), string(event.Status),
		userID, event.Username, event.SessionID,
		string(event.ResourceType), event.ResourceID,
		event.IPAddress, event.UserAgent, event.RequestID, event.Method, event.Path,
		event.Message, event.ErrorMessage, metadata, changes,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the database handle
func (l *DBLogger) Close() error {
	return nil
}

func jsonColumn(v interface{}, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Search returns events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	where, args := buildWhere(filter)

	query := "SELECT " + selectColumns + " FROM audit_logs" + where + " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return events, nil
}

func buildWhere(filter SearchFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.StartTime != nil {
		add("timestamp >= $%d", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		add("timestamp <= $%d", filter.EndTime.UTC())
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.Username != "" {
		add("username = $%d", filter.Username)
	}
	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			args = append(args, string(et))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	var (
		event                                       AuditEvent
		eventType, status                           string
		userID                                      sql.NullInt64
		username, sessionID, resourceType, resource sql.NullString
		ip, ua, requestID, method, path             sql.NullString
		message, errMessage, metadata, changes      sql.NullString
	)

	err := row.Scan(
		&event.ID, &event.Timestamp, &eventType, &status, &userID, &username, &sessionID,
		&resourceType, &resource, &ip, &ua, &requestID, &method, &path,
		&message, &errMessage, &metadata, &changes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	event.EventType = EventType(eventType)
	event.Status = EventStatus(status)
	if userID.Valid {
		id := userID.Int64
		event.UserID = &id
	}
	event.Username = username.String
	event.SessionID = sessionID.String
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resource.String
	event.IPAddress = ip.String
	event.UserAgent = ua.String
	event.RequestID = requestID.String
	event.Method = method.String
	event.Path = path.String
	event.Message = message.String
	event.ErrorMessage = errMessage.String

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
	}
	if changes.Valid && changes.String != "" {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal([]byte(changes.String), event.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode audit changes: %w", err)
		}
	}
	return &event, nil
}

// Get returns a single event by ID
func (l *DBLogger) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM audit_logs WHERE id = $1", id)
	event, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("audit log %d: %w", id, err)
	}
	return event, nil
}

// Stats counts events recorded at or after since
func (l *DBLogger) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT event_type, status, COUNT(*) FROM audit_logs WHERE timestamp >= $1 GROUP BY event_type, status`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		ByType:   make(map[EventType]int64),
		ByStatus: make(map[EventStatus]int64),
		Since:    since.UTC(),
	}
	for rows.Next() {
		var (
			eventType, status string
			count             int64
		)
		if err := rows.Scan(&eventType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit stats: %w", err)
		}
		stats.Total += count
		stats.ByType[EventType(eventType)] += count
		stats.ByStatus[EventStatus(status)] += count
		switch EventType(eventType) {
		case EventTypeLoginFailed:
			stats.FailedLogins += count
		case EventTypeAccessDenied:
			stats.AccessDenials += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit stats: %w", err)
	}
	return stats, nil
}

// Expired returns up to limit events older than before with an id above
// afterID, in id order
func (l *DBLogger) Expired(ctx context.Context, before time.Time, afterID int64, limit int) ([]*AuditEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM audit_logs WHERE timestamp < $1 AND id > $2 ORDER BY id LIMIT $3",
		before.UTC(), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired audit logs: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired audit logs: %w", err)
	}
	return events, nil
}

// Cleanup deletes events older than before and reports how many were removed
func (l *DBLogger) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned audit logs: %w", err)
	}
	return n, nil
}
