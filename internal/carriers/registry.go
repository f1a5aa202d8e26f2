// Package carriers wires each configured carrier portal into a token service and an API client.
package carriers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/apiclient"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers/hapag"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers/maersk"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/oracle"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/service"
)

// Carrier bundles everything that talks to one portal. Exactly one of Hapag and Maersk is set.
type Carrier struct {
	Name string
	Type string

	Tokens *service.TokenService
	Oracle core.Oracle

	// Scopes lists the token scopes known from configuration.
	Scopes []string

	Hapag  *hapag.Client
	Maersk *maersk.Client
}

// Deps are the shared resources every carrier is built on.
type Deps struct {
	Store          core.CredentialStore
	Browser        browser.Browser
	Auditor        core.Auditor
	HTTP           config.HTTPConfig
	BrowserTimeout time.Duration
}

type Registry struct {
	carriers map[string]*Carrier
}

// Build creates every configured carrier. Configuration problems of all carriers are
// reported together as one core.ConfigurationError.
func Build(cfgs []config.CarrierConfig, deps Deps) (*Registry, error) {
	reg := &Registry{carriers: make(map[string]*Carrier, len(cfgs))}
	problems := &core.ConfigurationError{}

	for _, cc := range cfgs {
		c, err := BuildCarrier(cc, deps)
		if err != nil {
			var cfgErr *core.ConfigurationError
			if errors.As(err, &cfgErr) {
				problems.Problems = append(problems.Problems, cfgErr.Problems...)
				continue
			}
			return nil, fmt.Errorf("building carrier %q: %w", cc.Name, err)
		}
		reg.carriers[cc.Name] = c
	}
	if err := problems.OrNil(); err != nil {
		return nil, err
	}
	return reg, nil
}

func BuildCarrier(cc config.CarrierConfig, deps Deps) (*Carrier, error) {
	switch cc.Type {
	case hapag.Type:
		settings, err := hapag.ParseSettings(cc.Name, cc.Config)
		if err != nil {
			return nil, err
		}
		probe := oracle.NewProbeOracle(settings.ProbeURL(), hapag.Decorate)
		orc := oracle.NewPrefixFilter(probe)
		renewer := hapag.NewRenewer(settings, deps.Browser, deps.BrowserTimeout)
		tokens := service.NewTokenService(cc.Name, deps.Store, orc, renewer, deps.Auditor)
		return &Carrier{
			Name:   cc.Name,
			Type:   cc.Type,
			Tokens: tokens,
			Oracle: orc,
			Scopes: []string{core.DefaultScope},
			Hapag:  hapag.NewClient(apiclient.New(cc.Name, tokens, deps.HTTP), settings),
		}, nil

	case maersk.Type:
		settings, err := maersk.ParseSettings(cc.Name, cc.Config)
		if err != nil {
			return nil, err
		}
		orc := oracle.NewClaimOracle()
		renewer := maersk.NewRenewer(settings, deps.Browser, deps.BrowserTimeout)
		tokens := service.NewTokenService(cc.Name, deps.Store, orc, renewer, deps.Auditor)
		return &Carrier{
			Name:   cc.Name,
			Type:   cc.Type,
			Tokens: tokens,
			Oracle: orc,
			Scopes: settings.Scopes(),
			Maersk: maersk.NewClient(apiclient.New(cc.Name, tokens, deps.HTTP), settings),
		}, nil

	default:
		return nil, fmt.Errorf("unknown carrier type %q for carrier %q", cc.Type, cc.Name)
	}
}

// Get returns the carrier configured under name.
func (r *Registry) Get(name string) (*Carrier, error) {
	if c, ok := r.carriers[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown carrier '%s' (configured: %s)", name, strings.Join(r.Names(), ", "))
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.carriers))
	for name := range r.carriers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every carrier sorted by name.
func (r *Registry) All() []*Carrier {
	out := make([]*Carrier, 0, len(r.carriers))
	for _, name := range r.Names() {
		out = append(out, r.carriers[name])
	}
	return out
}
