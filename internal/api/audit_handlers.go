package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api/presenter"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const defaultAuditLimit = 50

// handleListAudits returns recent token lifecycle audit entries.
// Supported filters: id (run or request id), carrier, scope, action and fingerprint.
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if s.audits == nil {
		presenter.Error(w, r, "audit log is disabled or not readable", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	limit := defaultAuditLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			logger.Warn().Str("limit", v).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	filter := auditFilter{
		id:          q.Get("id"),
		carrier:     q.Get("carrier"),
		scope:       q.Get("scope"),
		action:      q.Get("action"),
		fingerprint: q.Get("fingerprint"),
	}

	var (
		entries []core.AuditEntry
		err     error
	)
	if filter.empty() {
		entries, err = s.audits.GetRecent(limit)
	} else {
		logger.Debug().Msg("applying audit log filters")
		entries, err = s.audits.Find(filter.match, limit)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	presenter.JSON(w, r, entries, http.StatusOK)
}

type auditFilter struct {
	id, carrier, scope, action, fingerprint string
}

func (f auditFilter) empty() bool {
	return f == auditFilter{}
}

func (f auditFilter) match(e core.AuditEntry) bool {
	if f.id != "" && e.ID != f.id {
		return false
	}
	if f.carrier != "" && e.Carrier != f.carrier {
		return false
	}
	if f.scope != "" && e.Scope != f.scope {
		return false
	}
	if f.action != "" && e.Action != f.action {
		return false
	}
	if f.fingerprint != "" && e.TokenFingerprint != f.fingerprint {
		return false
	}
	return true
}
