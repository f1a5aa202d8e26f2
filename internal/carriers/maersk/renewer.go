package maersk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const (
	consentButton = `//button[contains(text(), 'Allow all')]`
	loginLink     = `//a[normalize-space()='Login']`
	usernameInput = `input[name="username"]`
	passwordInput = `input[name="password"]`
	submitButton  = `#login-submit-button`
)

// tokenKeys are the storage keys the portal keeps the id token under, newest first.
var tokenKeys = []string{"[iam]id_token", "frJwt", "id_token"}

// listCustomersScript reads the customer picker, which lives in the shadow DOM of mc-table.
const listCustomersScript = `(() => {
	const customers = [];
	const table = document.querySelector('mc-table');
	if (!table || !table.shadowRoot) {
		return customers;
	}
	const cells = table.shadowRoot.querySelectorAll('td[data-header-id="name"] div[role="cell"]');
	cells.forEach((cell, index) => {
		const name = cell.querySelector('span.prominent');
		const code = cell.querySelector('span.mds-font--small');
		if (name && code) {
			customers.push({index: index, name: name.textContent.trim(), code: code.textContent.trim()});
		}
	});
	return customers;
})()`

const selectCustomerScript = `(() => {
	const table = document.querySelector('mc-table');
	if (!table || !table.shadowRoot) {
		return false;
	}
	const cells = table.shadowRoot.querySelectorAll('td[data-header-id="name"] div[role="cell"]');
	if (!cells[%d]) {
		return false;
	}
	cells[%d].click();
	return true;
})()`

// Customer is one entry of the portal's customer picker.
type Customer struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Code  string `json:"code"`
}

var _ core.BulkRenewer = (*Renewer)(nil)

// Renewer logs in once and walks the customer picker, capturing one id token per customer.
type Renewer struct {
	settings *Settings
	browser  browser.Browser

	Timeout        time.Duration
	ConsentTimeout time.Duration
	LoginTimeout   time.Duration
	PollInterval   time.Duration
	PollAttempts   int
}

func NewRenewer(settings *Settings, b browser.Browser, timeout time.Duration) *Renewer {
	return &Renewer{
		settings:       settings,
		browser:        b,
		Timeout:        timeout,
		ConsentTimeout: 5 * time.Second,
		LoginTimeout:   30 * time.Second,
		PollInterval:   time.Second,
		PollAttempts:   20,
	}
}

func (r *Renewer) Name() string {
	return Type
}

// Renew runs a full session and returns the token of scope. The portal offers no way to
// log into a single customer.
func (r *Renewer) Renew(ctx context.Context, scope string) (*core.Token, error) {
	res, err := r.RenewAll(ctx)
	if err != nil {
		return nil, err
	}
	if tok, ok := res.Tokens[scope]; ok {
		return tok, nil
	}
	reason := "customer not offered by the portal"
	for _, f := range res.Failures {
		if f.Scope == scope {
			reason = f.Reason
		}
	}
	return nil, &core.RenewalError{Carrier: Type, Step: "customer " + scope, Err: errors.New(reason)}
}

func (r *Renewer) RenewAll(ctx context.Context) (*core.BulkRenewal, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	logger := log.Ctx(ctx).With().Str("carrier", Type).Logger()

	fail := func(step string, err error) error {
		return &core.RenewalError{Carrier: Type, Step: step, Err: err}
	}

	sess, err := r.browser.Open(ctx)
	if err != nil {
		return nil, fail("launch browser", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing browser session")
		}
	}()

	if err := r.login(ctx, sess); err != nil {
		return nil, err
	}

	var customers []Customer
	if err := sess.Eval(ctx, listCustomersScript, &customers); err != nil {
		return nil, fail("list customers", err)
	}
	if len(customers) == 0 {
		return nil, fail("list customers", errors.New("no customers found"))
	}
	logger.Info().Int("customers", len(customers)).Msg("logged in")

	result := &core.BulkRenewal{Tokens: make(map[string]*core.Token, len(customers))}
	previous := ""
	for i, customer := range customers {
		clog := logger.With().Str("customer", customer.Code).Int("index", i+1).Int("total", len(customers)).Logger()

		tok, err := r.captureCustomer(ctx, sess, customer, previous)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fail("customer "+customer.Code, ctx.Err())
			}
			clog.Warn().Err(err).Msg("skipping customer")
			result.Failures = append(result.Failures, core.ScopeFailure{
				Scope:  customer.Code,
				Name:   customer.Name,
				Reason: err.Error(),
			})
			continue
		}
		clog.Info().Str("fingerprint", tok.Fingerprint()).Msg("token captured")
		result.Tokens[customer.Code] = tok
		previous = tok.Value
	}

	if len(result.Tokens) == 0 {
		return nil, fail("capture tokens", fmt.Errorf("no token captured for %d customers", len(customers)))
	}
	return result, nil
}

func (r *Renewer) login(ctx context.Context, sess browser.Session) error {
	fail := func(step string, err error) error {
		return &core.RenewalError{Carrier: Type, Step: step, Err: err}
	}

	if err := sess.Navigate(ctx, r.settings.BaseURL); err != nil {
		return fail("open portal", err)
	}
	sess.TryClick(ctx, consentButton, r.ConsentTimeout)

	if err := sess.Click(ctx, loginLink); err != nil {
		return fail("open login form", err)
	}
	if err := sess.Fill(ctx, usernameInput, r.settings.Username); err != nil {
		return fail("fill username", err)
	}
	if err := sess.Fill(ctx, passwordInput, r.settings.Password); err != nil {
		return fail("fill password", err)
	}
	if err := sess.Click(ctx, submitButton); err != nil {
		return fail("submit login", err)
	}
	if err := sess.WaitURLContains(ctx, selectCustomerPath, r.LoginTimeout); err != nil {
		return fail("await customer selection", err)
	}
	return nil
}

// captureCustomer selects the customer and waits for a token different from the previous
// customer's, since the storage keys are shared and only overwritten once the switch completes.
func (r *Renewer) captureCustomer(ctx context.Context, sess browser.Session, c Customer, previous string) (*core.Token, error) {
	current, err := sess.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading url: %w", err)
	}
	if !strings.Contains(current, selectCustomerPath) {
		if err := sess.Navigate(ctx, r.settings.BaseURL+selectCustomerPath); err != nil {
			return nil, fmt.Errorf("returning to customer selection: %w", err)
		}
	}

	var clicked bool
	if err := sess.Eval(ctx, fmt.Sprintf(selectCustomerScript, c.Index, c.Index), &clicked); err != nil {
		return nil, fmt.Errorf("selecting customer: %w", err)
	}
	if !clicked {
		return nil, errors.New("customer entry not clickable")
	}

	extraction := browser.Extraction{
		StorageKeys: tokenKeys,
		Accept:      func(v string) bool { return v != previous },
	}
	type found struct {
		value  string
		source core.TokenSource
	}
	res, err := browser.Poll(ctx, r.PollInterval, r.PollAttempts, func(ctx context.Context) (found, bool) {
		v, src, err := browser.Extract(ctx, sess, extraction)
		return found{v, src}, err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for id token: %w", err)
	}

	return &core.Token{
		Carrier:      Type,
		Scope:        c.Code,
		Value:        res.value,
		CustomerName: c.Name,
		Source:       res.source,
	}, nil
}
