package core

import (
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// DefaultScope is the scope used by carriers with a single login identity.
const DefaultScope = "default"

// TokenSource tells where a renewal driver found the token value.
type TokenSource string

const (
	SourceCookie  TokenSource = "cookie"
	SourceStorage TokenSource = "storage"
	SourcePage    TokenSource = "page"
)

// Issuance tells how the token service obtained a token for a caller.
type Issuance string

const (
	IssuedCached  Issuance = "cached"
	IssuedRenewed Issuance = "renewed"
)

// Token is a bearer credential for one carrier scope.
type Token struct {
	// Carrier is the configured carrier name (e.g. "hapag", "maersk").
	Carrier string `json:"carrier"`

	// Scope is the customer code for multi-tenant carriers, DefaultScope otherwise.
	Scope string `json:"scope"`

	// Value is the opaque bearer string, kept byte-for-byte as captured.
	Value string `json:"token_value"`

	// CustomerName is the display name of the customer behind the scope, if known.
	CustomerName string `json:"customer_name,omitempty"`

	// Expiry is the expiration time if the value carries one. Zero means unknown.
	Expiry time.Time `json:"-"`

	// CapturedAt is the time the renewal driver captured the value.
	CapturedAt time.Time `json:"captured_at"`

	// Source is where the renewal driver found the value.
	Source TokenSource `json:"source,omitempty"`

	// IssuedVia is diagnostics only and never persisted.
	IssuedVia Issuance `json:"-"`
}

// Fingerprint identifies a token value in logs and audit entries without revealing it.
func (t *Token) Fingerprint() string {
	if t == nil || t.Value == "" {
		return ""
	}
	return Fingerprint(t.Value)
}

func Fingerprint(value string) string {
	hash := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(hash[:])[:16]
}

// ScopeFailure records a scope a bulk renewal could not capture.
type ScopeFailure struct {
	Scope  string `json:"scope"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// BulkRenewal is the outcome of a multi-tenant login session.
type BulkRenewal struct {
	Tokens   map[string]*Token
	Failures []ScopeFailure
}
