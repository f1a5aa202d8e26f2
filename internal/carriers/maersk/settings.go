// Package maersk talks to the Maersk customer portal. One login exposes every customer
// of the account, each with its own id token, so renewal is a bulk operation.
package maersk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const Type = "maersk"

const (
	DefaultBaseURL     = "https://www.maersk.com"
	DefaultAPIBaseURL  = "https://api.maersk.com"
	DefaultCarrierCode = "MAEU"
	DefaultPageSize    = 337

	selectCustomerPath = "/portaluser/select-customer"
)

type Settings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	BaseURL     string `mapstructure:"base_url"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	CarrierCode string `mapstructure:"carrier_code"`

	// The dispute and invoice APIs are registered under different consumer keys.
	DisputeConsumerKey string `mapstructure:"dispute_consumer_key"`
	InvoiceConsumerKey string `mapstructure:"invoice_consumer_key"`

	// Customers maps the customer code shown in the portal (the token scope)
	// to the code the APIs expect, e.g. 305S3073SPA -> BRS3073SPA.
	Customers map[string]string `mapstructure:"customers"`

	PageSize int `mapstructure:"page_size"`
}

func ParseSettings(name string, raw map[string]any) (*Settings, error) {
	var s Settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder for maersk carrier '%s': %w", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config for maersk carrier '%s': %w", name, err)
	}

	problems := &core.ConfigurationError{}
	for key, value := range map[string]string{
		"username":             s.Username,
		"password":             s.Password,
		"dispute_consumer_key": s.DisputeConsumerKey,
		"invoice_consumer_key": s.InvoiceConsumerKey,
	} {
		if value == "" {
			problems.Add("carrier '%s': %s is required", name, key)
		}
	}
	if err := problems.OrNil(); err != nil {
		sort.Strings(problems.Problems)
		return nil, err
	}

	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.BaseURL = strings.TrimSuffix(s.BaseURL, "/")
	if s.APIBaseURL == "" {
		s.APIBaseURL = DefaultAPIBaseURL
	}
	s.APIBaseURL = strings.TrimSuffix(s.APIBaseURL, "/")
	if s.CarrierCode == "" {
		s.CarrierCode = DefaultCarrierCode
	}
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	return &s, nil
}

// APICustomerCode translates a portal customer code. Unmapped codes are used as is.
func (s *Settings) APICustomerCode(code string) string {
	if api, ok := s.Customers[code]; ok && api != "" {
		return api
	}
	return code
}

// Scopes returns the configured customer codes in a stable order.
func (s *Settings) Scopes() []string {
	scopes := make([]string, 0, len(s.Customers))
	for code := range s.Customers {
		scopes = append(scopes, code)
	}
	sort.Strings(scopes)
	return scopes
}
