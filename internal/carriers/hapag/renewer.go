package hapag

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/oracle"
)

const (
	consentButton = `//button[contains(., 'Confirm My Choices')]`
	usernameInput = `#signInName`
	passwordInput = `#password`
	submitButton  = `#next`

	loggedInFragment = "/solutions/"
)

var _ core.Renewer = (*Renewer)(nil)

// Renewer logs into the portal and reads the auth cookie from the dispute overview.
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
		LoginTimeout:   time.Minute,
		PollInterval:   time.Second,
		PollAttempts:   20,
	}
}

func (r *Renewer) Name() string {
	return Type
}

// Renew ignores scope: the portal has one account and one token.
func (r *Renewer) Renew(ctx context.Context, _ string) (*core.Token, error) {
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

	if err := sess.Navigate(ctx, r.settings.LoginURL); err != nil {
		return nil, fail("open login page", err)
	}
	if sess.TryClick(ctx, consentButton, r.ConsentTimeout) {
		logger.Debug().Msg("cookie banner dismissed")
	}

	if err := sess.Fill(ctx, usernameInput, r.settings.Username); err != nil {
		return nil, fail("fill username", err)
	}
	if err := sess.Fill(ctx, passwordInput, r.settings.Password); err != nil {
		return nil, fail("fill password", err)
	}
	if err := sess.Click(ctx, submitButton); err != nil {
		return nil, fail("submit login", err)
	}
	if err := sess.WaitURLContains(ctx, loggedInFragment, r.LoginTimeout); err != nil {
		return nil, fail("await login", err)
	}
	logger.Info().Msg("logged in")

	if err := sess.Navigate(ctx, r.settings.DisputePageURL); err != nil {
		return nil, fail("open dispute overview", err)
	}

	filter := oracle.NewPrefixFilter(nil)
	extraction := browser.Extraction{
		Cookies: []string{r.settings.TokenCookie},
		Accept:  filter.LooksLikeToken,
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
		return nil, fail("capture "+r.settings.TokenCookie+" cookie", err)
	}

	logger.Info().Str("fingerprint", core.Fingerprint(res.value)).Msg("token captured")
	return &core.Token{
		Carrier: Type,
		Scope:   core.DefaultScope,
		Value:   res.value,
		Source:  res.source,
	}, nil
}
