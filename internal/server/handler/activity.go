package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// maxRecentLogs caps GET /api/logs/recent?count=.
const maxRecentLogs = 500

// LogFeed reads the shared bot log stream.
type LogFeed interface {
	Recent(ctx context.Context, lastID string, count int) ([]domain.LogEntry, string, error)
}

// AuditLister reads the audit trail.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ActivityHandler serves the cross-bot log stream and the audit trail.
type ActivityHandler struct {
	logs  LogFeed
	audit AuditLister
}

// NewActivityHandler creates an ActivityHandler. audit is nil when Postgres
// is disabled.
func NewActivityHandler(logs LogFeed, audit AuditLister) *ActivityHandler {
	return &ActivityHandler{logs: logs, audit: audit}
}

// RecentLogs returns log entries of every bot after the stream id ?after=
// (default "0", the oldest retained entry). Clients poll with the returned
// last_id to catch up after a reconnect.
// GET /api/logs/recent
func (h *ActivityHandler) RecentLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if n, err := strconv.Atoi(q.Get("count")); err == nil && n > 0 {
		count = min(n, maxRecentLogs)
	}

	entries, lastID, err := h.logs.Recent(r.Context(), after, count)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"last_id": lastID,
	})
}

// ListAudit returns audit entries, newest first.
// GET /api/audit
func (h *ActivityHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit store disabled")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
