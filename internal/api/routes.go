package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/about"
	MetricsRoute     = "/metrics"

	TokenParent     = "/v1/tokens/"
	TokenStateRoute = TokenParent

	AuditParent     = "/v1/audit/"
	ListAuditsRoute = AuditParent

	TaskParent       = "/v1/tasks/"
	ListTasksRoute   = TaskParent
	TriggerTaskRoute = TaskParent + "{name}/trigger"
	LogsForTaskRoute = TaskParent + "{name}/logs"
)
