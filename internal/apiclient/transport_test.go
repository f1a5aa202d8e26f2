package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// fakeTokens hands out "t1", "t2", ... and moves on whenever the current value is invalidated.
type fakeTokens struct {
	mu          sync.Mutex
	generation  int
	gets        int
	invalidated []string
	err         error
}

func (f *fakeTokens) GetValidToken(_ context.Context, scope string, _ bool) (*core.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	if f.generation == 0 {
		f.generation = 1
	}
	return &core.Token{Scope: scope, Value: fmt.Sprintf("t%d", f.generation)}, nil
}

func (f *fakeTokens) Invalidate(_ context.Context, _ string, rejected string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, rejected)
	if rejected == fmt.Sprintf("t%d", f.generation) {
		f.generation++
	}
}

type hit struct {
	auth   string
	method string
	query  url.Values
	body   string
	header http.Header
}

// sequence answers with the given statuses in order, repeating the last one.
func sequence(t *testing.T, statuses ...int) (*httptest.Server, func() []hit) {
	t.Helper()
	var (
		mu   sync.Mutex
		hits []hit
		n    atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		hits = append(hits, hit{
			auth:   r.Header.Get("Authorization"),
			method: r.Method,
			query:  r.URL.Query(),
			body:   string(body),
			header: r.Header.Clone(),
		})
		mu.Unlock()

		i := int(n.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[i])
		if statuses[i] == http.StatusOK {
			_, _ = w.Write([]byte(`{"disputeNumber": 4711, "status": "OPEN"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []hit {
		mu.Lock()
		defer mu.Unlock()
		return append([]hit(nil), hits...)
	}
}

func newTestClient(tokens TokenSource) (*Client, *[]time.Duration) {
	c := New("test", tokens, config.HTTPConfig{
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
	})
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestDo_Success(t *testing.T) {
	srv, hits := sequence(t, http.StatusOK)
	tokens := &fakeTokens{}
	c, _ := newTestClient(tokens)

	var out map[string]any
	err := c.Do(context.Background(), Request{
		URL:   srv.URL + "/api/disputes",
		Query: url.Values{"invoiceNumber": {"INV-1"}},
		Decorate: func(h http.Header, token string) {
			h.Set("x-token", token)
		},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "OPEN", out["status"])

	got := hits()
	require.Len(t, got, 1)
	assert.Equal(t, "Bearer t1", got[0].auth)
	assert.Equal(t, "t1", got[0].header.Get("X-Token"))
	assert.Equal(t, "INV-1", got[0].query.Get("invoiceNumber"))
	assert.Contains(t, got[0].header.Get("User-Agent"), "carrier=test")
}

func TestDo_PostsJSON(t *testing.T) {
	srv, hits := sequence(t, http.StatusOK)
	c, _ := newTestClient(&fakeTokens{})

	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"invoiceNumber": "INV-1"},
	}, nil)
	require.NoError(t, err)

	got := hits()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.JSONEq(t, `{"invoiceNumber":"INV-1"}`, got[0].body)
	assert.Equal(t, "application/json", got[0].header.Get("Content-Type"))
}

func TestDo_RenewsOnceOn401(t *testing.T) {
	srv, hits := sequence(t, http.StatusUnauthorized, http.StatusOK)
	tokens := &fakeTokens{}
	c, _ := newTestClient(tokens)

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.NoError(t, err)

	got := hits()
	require.Len(t, got, 2)
	assert.Equal(t, "Bearer t1", got[0].auth)
	assert.Equal(t, "Bearer t2", got[1].auth)
	assert.Equal(t, []string{"t1"}, tokens.invalidated)
	assert.Equal(t, 2, tokens.gets)
}

func TestDo_SecondRejectionFails(t *testing.T) {
	srv, hits := sequence(t, http.StatusUnauthorized, http.StatusUnauthorized)
	tokens := &fakeTokens{}
	c, _ := newTestClient(tokens)

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.ErrorIs(t, err, core.ErrAuthorizationRejected)

	var statusErr *core.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	assert.Len(t, hits(), 2, "exactly one retry")
	assert.Len(t, tokens.invalidated, 1)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	srv, hits := sequence(t, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusOK)
	c, sleeps := newTestClient(&fakeTokens{})

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Len(t, hits(), 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	srv, hits := sequence(t, http.StatusInternalServerError)
	c, sleeps := newTestClient(&fakeTokens{})

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.ErrorIs(t, err, core.ErrTransient)

	var statusErr *core.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Len(t, hits(), 3)
	assert.Len(t, *sleeps, 2)
}

func TestDo_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, sleeps := newTestClient(&fakeTokens{})
	err := c.Do(context.Background(), Request{URL: addr}, nil)
	require.ErrorIs(t, err, core.ErrTransient)
	assert.Len(t, *sleeps, 2)
}

func TestDo_NotFound(t *testing.T) {
	srv, hits := sequence(t, http.StatusNotFound)
	c, sleeps := newTestClient(&fakeTokens{})

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Len(t, hits(), 1)
	assert.Empty(t, *sleeps)
}

func TestDo_ClientErrorIsNotRetried(t *testing.T) {
	srv, hits := sequence(t, http.StatusBadRequest)
	c, _ := newTestClient(&fakeTokens{})

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	var statusErr *core.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.False(t, errors.Is(err, core.ErrTransient))
	assert.Len(t, hits(), 1)
}

func TestDo_TokenFailureSkipsRequest(t *testing.T) {
	srv, hits := sequence(t, http.StatusOK)
	tokens := &fakeTokens{err: &core.RenewalError{Carrier: "test", Step: "login"}}
	c, _ := newTestClient(tokens)

	err := c.Do(context.Background(), Request{URL: srv.URL}, nil)
	require.ErrorIs(t, err, core.ErrRenewalFailed)
	assert.Empty(t, hits())
}
