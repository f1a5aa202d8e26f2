package core

import "time"

type AuditEntry struct {
	// ID is the run or request ID the event belongs to
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "token.renew", "token.invalidate")
	Action string `json:"action"`

	Carrier string `json:"carrier"`
	Scope   string `json:"scope,omitempty"`

	// Forced is set when the caller bypassed the cache
	Forced bool `json:"forced,omitempty"`

	// Outcome
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	TokenFingerprint string `json:"token_fingerprint,omitempty"`
	Duration         string `json:"duration,omitempty"`

	// Metadata contains extra details (e.g. skipped customers of a bulk renewal)
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}

// AuditReader is implemented by auditors that can return past entries.
type AuditReader interface {
	GetRecent(limit int) ([]AuditEntry, error)
	Find(filter func(entry AuditEntry) bool, limit int) ([]AuditEntry, error)
}
