// Package apiclient is the authenticated HTTP transport shared by the carrier API clients.
// It obtains tokens from a TokenSource, reports 401s back to it and retries transient failures.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/audit"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/metrics"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// TokenSource is the part of the token service the transport needs.
type TokenSource interface {
	GetValidToken(ctx context.Context, scope string, force bool) (*core.Token, error)
	Invalidate(ctx context.Context, scope, rejected string)
}

// Request describes one upstream call.
type Request struct {
	Method string
	URL    string
	Query  url.Values

	// Body is encoded as JSON when set.
	Body any

	// Scope selects the token; empty means the default scope.
	Scope string

	Header http.Header

	// Decorate adds carrier specific headers once the token is known.
	Decorate func(h http.Header, token string)
}

// Client performs authenticated requests for one carrier.
type Client struct {
	carrier     string
	tokens      TokenSource
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker[*response]
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

type response struct {
	status int
	body   []byte
}

// transientError marks failures that are worth another attempt.
type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("upstream status %d", e.status)
	}
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

func New(carrier string, tokens TokenSource, cfg config.HTTPConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	name := carrier + "-api"
	metrics.CircuitBreakerState.WithLabelValues(carrier).Set(0)

	return &Client{
		carrier: carrier,
		tokens:  tokens,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 10
			},
			// only server side trouble opens the circuit
			IsSuccessful: func(err error) bool {
				var te *transientError
				return err == nil || !errors.As(err, &te)
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				log.Warn().
					Str("carrier", carrier).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
				metrics.CircuitBreakerState.WithLabelValues(carrier).Set(float64(to))
			},
		}),
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: attempts,
		backoff:     cfg.Backoff,
		sleep:       sleepContext,
	}
}

// Carrier returns the carrier this client talks to.
func (c *Client) Carrier() string {
	return c.carrier
}

// Do performs req and decodes a 2xx JSON body into out (if out is not nil).
//
// A 401 invalidates the token, fetches a valid one and retries exactly once; a second 401
// yields core.ErrAuthorizationRejected. Server errors and network failures are retried with
// exponential backoff and end in core.ErrTransient. A 404 yields core.ErrNotFound.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	tok, err := c.tokens.GetValidToken(ctx, req.Scope, false)
	if err != nil {
		return fmt.Errorf("obtaining %s token: %w", c.carrier, err)
	}

	resp, err := c.send(ctx, req, tok.Value)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized {
		log.Ctx(ctx).Info().
			Str("carrier", c.carrier).
			Str("scope", req.Scope).
			Str("url", req.URL).
			Msg("token rejected, renewing")

		c.tokens.Invalidate(ctx, req.Scope, tok.Value)
		if tok, err = c.tokens.GetValidToken(ctx, req.Scope, false); err != nil {
			return fmt.Errorf("renewing %s token after 401: %w", c.carrier, err)
		}
		if resp, err = c.send(ctx, req, tok.Value); err != nil {
			return err
		}
		if resp.status == http.StatusUnauthorized {
			return &core.StatusError{StatusCode: resp.status, Body: snippet(resp.body), Wrapped: core.ErrAuthorizationRejected}
		}
	}

	switch {
	case resp.status == http.StatusNotFound:
		return &core.StatusError{StatusCode: resp.status, Wrapped: core.ErrNotFound}
	case resp.status < 200 || resp.status >= 300:
		return &core.StatusError{
			StatusCode: resp.status,
			Body:       snippet(resp.body),
			Wrapped:    errors.New(http.StatusText(resp.status)),
		}
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decoding response of %s: %w", req.URL, err)
	}
	return nil
}

// send runs the request until it gets a non transient answer or runs out of attempts.
func (c *Client) send(ctx context.Context, req Request, token string) (*response, error) {
	delay := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.breaker.Execute(func() (*response, error) {
			return c.roundTrip(ctx, req, token)
		})
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrTransient, c.carrier, err)
		}

		var te *transientError
		if !errors.As(err, &te) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt < c.maxAttempts {
			log.Ctx(ctx).Warn().
				Err(err).
				Str("carrier", c.carrier).
				Str("url", req.URL).
				Int("attempt", attempt).
				Int("max_attempts", c.maxAttempts).
				Dur("delay", delay).
				Msg("retrying upstream request")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}
	}

	var te *transientError
	if errors.As(lastErr, &te) && te.status > 0 {
		return nil, &core.StatusError{StatusCode: te.status, Wrapped: core.ErrTransient}
	}
	return nil, fmt.Errorf("%w: %w", core.ErrTransient, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, req Request, token string) (*response, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", audit.CreateUserAgent(core.RunID(ctx), c.carrier))
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.Decorate != nil {
		req.Decorate(httpReq.Header, token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordAPIRequest(c.carrier, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	metrics.RecordAPIRequest(c.carrier, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("reading response body: %w", err)}
	}

	log.Ctx(ctx).Debug().
		Str("carrier", c.carrier).
		Str("method", method).
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("upstream request")

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &transientError{status: resp.StatusCode, err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// snippet shortens a body for error messages.
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
