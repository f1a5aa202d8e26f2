package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api/middleware"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/service"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/tasks"
)

// TokenReporter exposes the token states of one carrier.
type TokenReporter interface {
	Carrier() string
	Status(ctx context.Context) []service.ScopeStatus
}

type Server struct {
	taskManager *tasks.Manager
	tokens      []TokenReporter

	// audits is nil when the configured auditor cannot read its entries back
	audits core.AuditReader
}

func NewServer(taskManager *tasks.Manager, tokens []TokenReporter, auditor core.Auditor) *Server {
	audits, _ := auditor.(core.AuditReader)
	return &Server{
		taskManager: taskManager,
		tokens:      tokens,
		audits:      audits,
	}
}

// Routes returns the handler of the ops API. With a non-empty adminKey every /v1/ route
// requires an admin session token signed with it.
func (s *Server) Routes(adminKey []byte) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.Handle("GET "+MetricsRoute, promhttp.Handler())

	v1 := http.NewServeMux()
	v1.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
	v1.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)
	v1.HandleFunc("GET "+LogsForTaskRoute, s.handleLogsForTask)
	v1.HandleFunc("GET "+TokenStateRoute, s.handleTokenStates)
	v1.HandleFunc("GET "+ListAuditsRoute, s.handleListAudits)

	var protected http.Handler = v1
	if len(adminKey) > 0 {
		protected = middleware.AdminAuth(adminKey)(v1)
	}
	mux.Handle("/v1/", protected)

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}
