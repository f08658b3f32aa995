package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/httputil"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditSearcher answers audit queries; *audit.DBLogger implements it
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.AuditEvent, error)
	Stats(ctx context.Context, since time.Time) (*audit.Stats, error)
}

func (s *Server) registerAuditRoutes(router *mux.Router) {
	router.HandleFunc("/audit", s.searchAudit).Methods("GET")
	router.HandleFunc("/audit/stats", s.auditStats).Methods("GET")
}

// searchAudit handles GET /api/admin/audit
func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	events, err := s.auditSearch.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// auditStats handles GET /api/admin/audit/stats. since defaults to 24
// hours ago.
func (s *Server) auditStats(w http.ResponseWriter, r *http.Request) {
	q := httputil.NewQuery(r)
	since := q.Time("since")
	if err := q.Err(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if since == nil {
		start := time.Now().Add(-24 * time.Hour)
		since = &start
	}
	stats, err := s.auditSearch.Stats(r.Context(), *since)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, stats)
}

func parseAuditFilter(r *http.Request) (audit.SearchFilter, error) {
	q := httputil.NewQuery(r)
	filter := audit.SearchFilter{
		StartTime:    q.Time("start"),
		EndTime:      q.Time("end"),
		UserID:       q.Int64("user_id"),
		Username:     q.String("username", ""),
		SessionID:    q.String("session_id", ""),
		Status:       audit.EventStatus(q.String("status", "")),
		ResourceType: audit.ResourceType(q.String("resource_type", "")),
		ResourceID:   q.String("resource_id", ""),
		Limit:        q.Int("limit", defaultAuditLimit),
		Offset:       q.Int("offset", 0),
	}
	for _, t := range q.List("event_type") {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
	}
	if err := q.Err(); err != nil {
		return filter, err
	}

	if filter.Limit <= 0 || filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter, nil
}
