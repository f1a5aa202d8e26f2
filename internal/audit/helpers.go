package audit

import (
	"fmt"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/buildinfo"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// New builds the auditor described by cfg. A disabled config yields a NoopAuditor.
func New(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return NewNoopAuditor(), nil
	}
	switch cfg.Type {
	case "memory":
		return NewInMemoryAuditor(DefaultMemoryCapacity), nil
	case "file", "":
		return NewFileAuditor(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit type '%s'", cfg.Type)
	}
}

// CreateUserAgent is sent with every upstream API call so requests can be traced back to a run.
func CreateUserAgent(runID, carrier string) string {
	return fmt.Sprintf("DisputaPortal/%s (run_id=%s; carrier=%s)", buildinfo.Version, runID, carrier)
}
