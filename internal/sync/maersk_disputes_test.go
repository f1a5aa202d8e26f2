package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/apiclient"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/carriers/maersk"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/repository"
)

const customer = "305S3073SPA"

// rotatingTokens hands out t1, t2, ... and moves on when the current value is invalidated.
type rotatingTokens struct {
	mu          stdsync.Mutex
	generation  int
	invalidated []string
}

func (r *rotatingTokens) GetValidToken(_ context.Context, scope string, _ bool) (*core.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation == 0 {
		r.generation = 1
	}
	return &core.Token{Scope: scope, Value: fmt.Sprintf("t%d", r.generation)}, nil
}

func (r *rotatingTokens) Invalidate(_ context.Context, _ string, rejected string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, rejected)
	if rejected == fmt.Sprintf("t%d", r.generation) {
		r.generation++
	}
}

// maerskPortal serves the dispute search and details. Details of rejected disputes always answer 401.
func maerskPortal(t *testing.T, n int, rejected map[string]bool) (*httptest.Server, func() map[string]int) {
	t.Helper()
	var (
		mu    stdsync.Mutex
		calls = make(map[string]int)
	)
	const base = "/disputes-external/api/dispute"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.Method+" "+r.URL.Path]++
		mu.Unlock()

		assert.Equal(t, customer+"-API", r.Header.Get("customer-code"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == base+"/search/filter":
			records := make([]map[string]any, 0, n)
			for i := n; i >= 1; i-- {
				records = append(records, map[string]any{
					"ohpDisputeId":      fmt.Sprintf("D%02d", i),
					"invoiceNumber":     fmt.Sprintf("INV-%02d", i),
					"statusDescription": "Pending",
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"search_records": records})

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, base+"/"):
			id := strings.TrimPrefix(r.URL.Path, base+"/")
			if rejected[id] {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ohpDisputeId":      id,
				"statusDescription": "Pending",
				"disputedAmount":    125.5,
				"currency":          "USD",
				"disputeReason":     map[string]any{"reasonCode": "R01", "reasonDescription": "Wrong rate"},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() map[string]int {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int, len(calls))
		for k, v := range calls {
			out[k] = v
		}
		return out
	}
}

func newMaerskClient(t *testing.T, baseURL string, tokens apiclient.TokenSource) *maersk.Client {
	t.Helper()
	settings, err := maersk.ParseSettings("maersk", map[string]any{
		"username":             "user",
		"password":             "secret",
		"dispute_consumer_key": "dispute-key",
		"invoice_consumer_key": "invoice-key",
		"api_base_url":         baseURL,
		"customers":            map[string]any{customer: customer + "-API"},
	})
	require.NoError(t, err)
	api := apiclient.New("maersk", tokens, config.HTTPConfig{
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	})
	return maersk.NewClient(api, settings)
}

func TestMaerskDisputes_OneRejectedInvoiceDoesNotAbortTheRun(t *testing.T) {
	ctx := context.Background()
	srv, calls := maerskPortal(t, 50, map[string]bool{"D30": true})
	tokens := &rotatingTokens{}
	client := newMaerskClient(t, srv.URL, tokens)

	repo := repository.NewMemoryRepository()
	for i := 1; i <= 50; i++ {
		_, _, err := repo.UpsertInvoice(ctx, core.Invoice{
			Number:       fmt.Sprintf("INV-%02d", i),
			Carrier:      maersk.Type,
			CustomerCode: customer,
		})
		require.NoError(t, err)
	}

	syncer, err := New(repo, config.SyncConfig{Workers: 5})
	require.NoError(t, err)

	report, err := syncer.MaerskDisputes(ctx, tokens, client, customer, 0)
	require.NoError(t, err)

	assert.Equal(t, 50, report.Total)
	assert.Equal(t, 49, report.Succeeded())
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "INV-30", report.Failures[0].Item)
	assert.Contains(t, report.Failures[0].Error, core.ErrAuthorizationRejected.Error())

	// exactly one renewal and one retry for the rejected dispute
	assert.Equal(t, 2, calls()["GET /disputes-external/api/dispute/D30"])
	assert.Len(t, tokens.invalidated, 1)

	counts, err := repo.Counts(ctx, maersk.Type)
	require.NoError(t, err)
	assert.Equal(t, int64(49), counts.Disputes)
}

func TestMaerskDisputes_SkipsInvoicesWithoutDispute(t *testing.T) {
	ctx := context.Background()
	srv, _ := maerskPortal(t, 2, nil)
	tokens := &rotatingTokens{}
	client := newMaerskClient(t, srv.URL, tokens)

	repo := repository.NewMemoryRepository()
	for _, number := range []string{"INV-01", "INV-02", "INV-99"} {
		_, _, err := repo.UpsertInvoice(ctx, core.Invoice{Number: number, Carrier: maersk.Type, CustomerCode: customer})
		require.NoError(t, err)
	}

	syncer, err := New(repo, config.SyncConfig{Workers: 2})
	require.NoError(t, err)

	report, err := syncer.MaerskDisputes(ctx, tokens, client, customer, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Changed)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	// second run finds nothing new
	report, err = syncer.MaerskDisputes(ctx, tokens, client, customer, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unchanged)
	assert.Zero(t, report.Changed)
}
