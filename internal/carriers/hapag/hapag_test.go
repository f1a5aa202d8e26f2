package hapag

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/apiclient"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser/browsertest"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var authCookie = "eyJhbGciOiJSUzI1NiJ9." + strings.Repeat("x", 80)

func testSettings(t *testing.T) *Settings {
	t.Helper()
	s, err := ParseSettings("hapag", map[string]any{"username": "user@example.com", "password": "secret"})
	require.NoError(t, err)
	return s
}

func TestParseSettings(t *testing.T) {
	s := testSettings(t)
	assert.Equal(t, DefaultLoginURL, s.LoginURL)
	assert.Equal(t, DefaultTokenCookie, s.TokenCookie)
	assert.Equal(t, DefaultDisputeAPI+"?limit=1", s.ProbeURL())

	_, err := ParseSettings("hapag", map[string]any{})
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Len(t, cfgErr.Problems, 2)
}

// portal simulates the login flow: submitting the form lands on /solutions/,
// opening the dispute overview sets the auth cookie.
func portal(cookie string) func() *browsertest.Session {
	return func() *browsertest.Session {
		return &browsertest.Session{
			Present: map[string]bool{consentButton: true},
			OnClick: func(s *browsertest.Session, selector string) {
				if selector == submitButton {
					s.CurrentURL = "https://www.hapag-lloyd.com/solutions/invoice-overview"
				}
			},
			OnNavigate: func(s *browsertest.Session, url string) {
				if url == DefaultLoginURL {
					s.CurrentURL = "https://login.hapag-lloyd.com/b2c/signin"
				}
				if strings.Contains(url, "dispute-overview") && cookie != "" {
					s.CookieJar = append(s.CookieJar, browser.Cookie{Name: "auth_prod", Value: cookie})
				}
			},
		}
	}
}

func fastRenewer(s *Settings, b browser.Browser) *Renewer {
	r := NewRenewer(s, b, time.Minute)
	r.PollInterval = time.Millisecond
	r.PollAttempts = 3
	return r
}

func TestRenewer_CapturesCookie(t *testing.T) {
	b := &browsertest.Browser{NewSession: portal(authCookie)}
	tok, err := fastRenewer(testSettings(t), b).Renew(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, authCookie, tok.Value)
	assert.Equal(t, core.SourceCookie, tok.Source)
	assert.Equal(t, core.DefaultScope, tok.Scope)

	require.Len(t, b.Sessions(), 1)
	sess := b.Sessions()[0]
	assert.True(t, sess.IsClosed())
	assert.Equal(t, []string{
		"navigate:" + DefaultLoginURL,
		"tryclick:" + consentButton,
		"fill:" + usernameInput,
		"fill:" + passwordInput,
		"click:" + submitButton,
		"waiturl:" + loggedInFragment,
		"navigate:" + DefaultDisputePageURL,
	}, sess.Actions)
}

func TestRenewer_Failures(t *testing.T) {
	tests := []struct {
		name    string
		session func() *browsertest.Session
		step    string
	}{
		{
			name: "submit fails",
			session: func() *browsertest.Session {
				s := portal(authCookie)()
				s.Fail = map[string]error{"click:" + submitButton: errors.New("element not found")}
				return s
			},
			step: "submit login",
		},
		{
			name: "login never completes",
			session: func() *browsertest.Session {
				s := portal(authCookie)()
				s.OnClick = nil
				return s
			},
			step: "await login",
		},
		{
			name:    "cookie never appears",
			session: portal(""),
			step:    "capture auth_prod cookie",
		},
		{
			name:    "cookie is not a token",
			session: portal("logged-out"),
			step:    "capture auth_prod cookie",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &browsertest.Browser{NewSession: tt.session}
			tok, err := fastRenewer(testSettings(t), b).Renew(context.Background(), "")
			assert.Nil(t, tok)
			require.ErrorIs(t, err, core.ErrRenewalFailed)

			var renewErr *core.RenewalError
			require.ErrorAs(t, err, &renewErr)
			assert.Equal(t, tt.step, renewErr.Step)
			assert.Equal(t, 1, b.Closed(), "browser is released on failure")
		})
	}
}

func TestRenewer_LaunchFailure(t *testing.T) {
	b := &browsertest.Browser{OpenErr: errors.New("chrome not installed")}
	_, err := fastRenewer(testSettings(t), b).Renew(context.Background(), "")
	require.ErrorIs(t, err, core.ErrRenewalFailed)
	assert.Contains(t, err.Error(), "chrome not installed")
}

type staticTokens struct{}

func (staticTokens) GetValidToken(_ context.Context, scope string, _ bool) (*core.Token, error) {
	return &core.Token{Scope: scope, Value: authCookie}, nil
}

func (staticTokens) Invalidate(context.Context, string, string) {}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := testSettings(t)
	s.DisputeAPI = srv.URL + "/api/disputes"
	s.InvoiceAPI = srv.URL + "/api/invoices"
	api := apiclient.New(Type, staticTokens{}, config.HTTPConfig{Timeout: 5 * time.Second, MaxAttempts: 1})
	return NewClient(api, s)
}

func TestClient_DisputesByInvoiceFallsBackToPost(t *testing.T) {
	var methods []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Equal(t, authCookie, r.Header.Get("x-token"))
		if r.Method == http.MethodGet {
			assert.Equal(t, "2100012345", r.URL.Query().Get("invoiceNumber"))
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"invoiceNumber":"2100012345"}`, string(body))
		_, _ = w.Write([]byte(`[
			{"disputeNumber": 1, "status": "OPEN", "amount": 10},
			{"disputeNumber": 2}
		]`))
	})

	disputes, err := c.DisputesByInvoice(context.Background(), "2100012345")
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodGet, http.MethodPost}, methods)
	require.Len(t, disputes, 1, "dispute without status is skipped")
	assert.Equal(t, "1", disputes[0].Number)
	assert.Equal(t, "2100012345", disputes[0].InvoiceNumber)
}

func TestClient_DisputesByInvoiceNone(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	disputes, err := c.DisputesByInvoice(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, disputes)
}

func TestClient_GetDispute(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/disputes/42":
			_, _ = w.Write([]byte(`{"disputeNumber": 42, "currentStatus": "CLOSED"}`))
		case "/api/disputes/43":
			_, _ = w.Write([]byte(`{"disputeNumber": 43}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	d, err := c.GetDispute(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", d.Status)

	_, err = c.GetDispute(context.Background(), "43")
	require.ErrorIs(t, err, ErrMissingStatus)

	_, err = c.GetDispute(context.Background(), "44")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_ListInvoices(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"invoiceList": [
			{"invoiceNumber": 2100012345, "bookingNumber": "HLCU123", "invoiceAmount": 99.5, "invoiceStatuses": ["PAID", "OPEN"]},
			{"invoiceNumber": "2100012346"},
			{"bookingNumber": "no number"}
		]}`))
	})

	invoices, err := c.ListInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "2100012345", invoices[0].Number)
	assert.Equal(t, "HLCU123", invoices[0].BookingRef)
	assert.Equal(t, "PAID", invoices[0].Status)
	require.NotNil(t, invoices[0].Amount)
	assert.InDelta(t, 99.5, *invoices[0].Amount, 0.001)
	assert.Equal(t, "UNKNOWN", invoices[1].Status)
	assert.Equal(t, Type, invoices[1].Carrier)
}
