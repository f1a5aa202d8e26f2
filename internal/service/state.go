package service

import "time"

// State is the lifecycle state of one (carrier, scope) token.
//
//	NO_TOKEN -> CACHED_UNVERIFIED -> VALID
//	                              -> EXPIRED -> RENEWING -> VALID | RENEW_FAILED
type State string

const (
	StateNoToken          State = "NO_TOKEN"
	StateCachedUnverified State = "CACHED_UNVERIFIED"
	StateValid            State = "VALID"
	StateExpired          State = "EXPIRED"
	StateRenewing         State = "RENEWING"
	StateRenewFailed      State = "RENEW_FAILED"
)

// ScopeStatus is a snapshot of one scope, safe to expose: it never holds the token value.
type ScopeStatus struct {
	Carrier      string    `json:"carrier"`
	Scope        string    `json:"scope"`
	CustomerName string    `json:"customer_name,omitempty"`
	State        State     `json:"state"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	CapturedAt   time.Time `json:"captured_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	ChangedAt    time.Time `json:"changed_at,omitempty"`
}
