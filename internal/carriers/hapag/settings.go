// Package hapag talks to the Hapag-Lloyd customer portal: a single tenant login that
// yields the auth_prod cookie, and the dispute and invoice overview APIs.
package hapag

import (
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const Type = "hapag"

const (
	DefaultLoginURL       = "https://www.hapag-lloyd.com/solutions/invoice-overview"
	DefaultDisputePageURL = "https://www.hapag-lloyd.com/solutions/dispute-overview/#/?language=pt"
	DefaultDisputeAPI     = "https://dispute-overview.api.hlag.cloud/api/disputes"
	DefaultInvoiceAPI     = "https://invoice-overview.api.hlag.cloud/api/invoices"
	DefaultTokenCookie    = "auth_prod"
)

// Settings is the carrier specific part of a carriers[] entry.
type Settings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	LoginURL       string `mapstructure:"login_url"`
	DisputePageURL string `mapstructure:"dispute_page_url"`
	DisputeAPI     string `mapstructure:"dispute_api"`
	InvoiceAPI     string `mapstructure:"invoice_api"`
	TokenCookie    string `mapstructure:"token_cookie"`
}

// ParseSettings decodes raw and fills defaults. Missing credentials are a configuration error.
func ParseSettings(name string, raw map[string]any) (*Settings, error) {
	var s Settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder for hapag carrier '%s': %w", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config for hapag carrier '%s': %w", name, err)
	}

	problems := &core.ConfigurationError{}
	if s.Username == "" {
		problems.Add("carrier '%s': username is required", name)
	}
	if s.Password == "" {
		problems.Add("carrier '%s': password is required", name)
	}
	if err := problems.OrNil(); err != nil {
		return nil, err
	}

	if s.LoginURL == "" {
		s.LoginURL = DefaultLoginURL
	}
	if s.DisputePageURL == "" {
		s.DisputePageURL = DefaultDisputePageURL
	}
	if s.DisputeAPI == "" {
		s.DisputeAPI = DefaultDisputeAPI
	}
	if s.InvoiceAPI == "" {
		s.InvoiceAPI = DefaultInvoiceAPI
	}
	if s.TokenCookie == "" {
		s.TokenCookie = DefaultTokenCookie
	}
	return &s, nil
}

// ProbeURL is the cheap authorized call used to validate a stored token.
func (s *Settings) ProbeURL() string {
	return s.DisputeAPI + "?limit=1"
}

// Decorate adds the x-token header the Hapag APIs expect next to the bearer header.
func Decorate(h http.Header, token string) {
	h.Set("x-token", token)
}
