package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/audit"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/oracle"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/store"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func jwtWithExp(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

type fakeRenewer struct {
	calls atomic.Int32
	delay time.Duration
	renew func(call int, scope string) (*core.Token, error)
}

func (f *fakeRenewer) Name() string { return "fake" }

func (f *fakeRenewer) Renew(ctx context.Context, scope string) (*core.Token, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.renew(n, scope)
}

type fakeBulkRenewer struct {
	fakeRenewer
	all func(call int) (*core.BulkRenewal, error)
}

func (f *fakeBulkRenewer) RenewAll(ctx context.Context) (*core.BulkRenewal, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.all(n)
}

func (f *fakeBulkRenewer) Renew(ctx context.Context, scope string) (*core.Token, error) {
	res, err := f.RenewAll(ctx)
	if err != nil {
		return nil, err
	}
	return res.Tokens[scope], nil
}

func newService(t *testing.T, carrier string, st core.CredentialStore, r core.Renewer) (*TokenService, *audit.InMemoryAuditor) {
	t.Helper()
	auditor := audit.NewInMemoryAuditor(100)
	o := &oracle.ClaimOracle{Now: func() time.Time { return testNow }}
	svc := NewTokenService(carrier, st, o, r, auditor)
	svc.Now = func() time.Time { return testNow }
	return svc, auditor
}

func TestGetValidToken_CachedValidTokenNeverRenews(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	value := jwtWithExp(t, "maersk-user", testNow.Add(2*time.Hour))
	require.NoError(t, st.Save(ctx, &core.Token{Carrier: "maersk", Scope: "305S3073SPA", Value: value}))

	r := &fakeBulkRenewer{all: func(int) (*core.BulkRenewal, error) {
		return nil, errors.New("must not be called")
	}}
	svc, auditor := newService(t, "maersk", st, r)

	for i := 0; i < 3; i++ {
		tok, err := svc.GetValidToken(ctx, "305S3073SPA", false)
		require.NoError(t, err)
		assert.Equal(t, value, tok.Value)
		assert.Equal(t, core.IssuedCached, tok.IssuedVia)
		assert.True(t, testNow.Add(2*time.Hour).Equal(tok.Expiry))
	}

	assert.Equal(t, int32(0), r.calls.Load())
	entries, _ := auditor.GetRecent(10)
	assert.Empty(t, entries)
	assert.Equal(t, StateValid, statusOf(t, svc, "305S3073SPA").State)
}

func TestGetValidToken_NoCacheRenewsAndPersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	fresh := "eyJ" + strings.Repeat("h", 80)

	r := &fakeRenewer{renew: func(_ int, scope string) (*core.Token, error) {
		assert.Equal(t, core.DefaultScope, scope)
		return &core.Token{Value: fresh, Source: core.SourceCookie}, nil
	}}
	// the hapag cookie value is not a JWT, so accept anything with the right shape
	svc := NewTokenService("hapag", st, oracle.NewPrefixFilter(acceptAll{}), r, audit.NewInMemoryAuditor(10))
	svc.Now = func() time.Time { return testNow }

	tok, err := svc.GetValidToken(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, fresh, tok.Value)
	assert.Equal(t, core.IssuedRenewed, tok.IssuedVia)
	assert.Equal(t, "hapag", tok.Carrier)
	assert.Equal(t, core.DefaultScope, tok.Scope)
	assert.Equal(t, int32(1), r.calls.Load())

	stored, err := st.Load(ctx, "hapag", core.DefaultScope)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, fresh, stored.Value)
	assert.True(t, testNow.Equal(stored.CapturedAt))

	// now served from the store
	tok, err = svc.GetValidToken(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, core.IssuedCached, tok.IssuedVia)
	assert.Equal(t, int32(1), r.calls.Load())
}

type acceptAll struct{}

func (acceptAll) IsValid(context.Context, *core.Token) bool { return true }

func TestGetValidToken_ConcurrentCallersShareOneRenewal(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	require.NoError(t, st.Save(ctx, &core.Token{
		Carrier: "maersk", Scope: "A", Value: jwtWithExp(t, "old", testNow.Add(-time.Minute)),
	}))

	fresh := jwtWithExp(t, "new", testNow.Add(time.Hour))
	r := &fakeRenewer{
		delay: 50 * time.Millisecond,
		renew: func(int, string) (*core.Token, error) { return &core.Token{Value: fresh}, nil },
	}
	svc, _ := newService(t, "maersk", st, r)

	const callers = 25
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		mu    sync.Mutex
		got   []string
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tok, err := svc.GetValidToken(ctx, "A", false)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			got = append(got, tok.Value)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	require.Len(t, got, callers)
	for _, v := range got {
		assert.Equal(t, fresh, v)
	}
}

func TestGetValidToken_RenewalFailure(t *testing.T) {
	ctx := context.Background()
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) {
		return nil, &core.RenewalError{Carrier: "hapag", Step: "submit login", Err: errors.New("element not found")}
	}}
	svc, auditor := newService(t, "hapag", store.NewInMemoryCredentialStore(), r)

	tok, err := svc.GetValidToken(ctx, "", false)
	assert.Nil(t, tok)
	require.ErrorIs(t, err, core.ErrRenewalFailed)
	var renewErr *core.RenewalError
	require.ErrorAs(t, err, &renewErr)
	assert.Equal(t, "submit login", renewErr.Step)

	assert.Equal(t, int32(1), r.calls.Load(), "no internal retry")
	assert.Equal(t, StateRenewFailed, statusOf(t, svc, core.DefaultScope).State)

	entries, _ := auditor.GetRecent(10)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.renew", entries[0].Action)
	assert.False(t, entries[0].Success)
	assert.NotEmpty(t, entries[0].Error)

	// a failure is not cached, the next call tries again
	_, err = svc.GetValidToken(ctx, "", false)
	require.Error(t, err)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestGetValidToken_PlainErrorsAreWrapped(t *testing.T) {
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) { return nil, errors.New("chrome crashed") }}
	svc, _ := newService(t, "hapag", store.NewInMemoryCredentialStore(), r)

	_, err := svc.GetValidToken(context.Background(), "", false)
	require.ErrorIs(t, err, core.ErrRenewalFailed)
	assert.Contains(t, err.Error(), "chrome crashed")
}

func TestGetValidToken_EmptyTokenIsFailure(t *testing.T) {
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) { return &core.Token{}, nil }}
	st := store.NewInMemoryCredentialStore()
	svc, _ := newService(t, "hapag", st, r)

	tok, err := svc.GetValidToken(context.Background(), "", false)
	assert.Nil(t, tok)
	require.ErrorIs(t, err, core.ErrRenewalFailed)

	stored, _ := st.Load(context.Background(), "hapag", core.DefaultScope)
	assert.Nil(t, stored, "nothing persisted")
}

func TestGetValidToken_ForceSkipsCache(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	require.NoError(t, st.Save(ctx, &core.Token{
		Carrier: "maersk", Scope: "A", Value: jwtWithExp(t, "still-valid", testNow.Add(time.Hour)),
	}))
	fresh := jwtWithExp(t, "forced", testNow.Add(2*time.Hour))
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) { return &core.Token{Value: fresh}, nil }}
	svc, auditor := newService(t, "maersk", st, r)

	tok, err := svc.GetValidToken(ctx, "A", true)
	require.NoError(t, err)
	assert.Equal(t, fresh, tok.Value)
	assert.Equal(t, int32(1), r.calls.Load())

	entries, _ := auditor.GetRecent(1)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Forced)
	assert.True(t, entries[0].Success)
}

func TestInvalidate_RenewsOnceForConcurrentRejections(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	old := jwtWithExp(t, "old", testNow.Add(time.Hour)) // claims say valid, upstream disagrees
	require.NoError(t, st.Save(ctx, &core.Token{Carrier: "maersk", Scope: "A", Value: old}))

	fresh := jwtWithExp(t, "fresh", testNow.Add(2*time.Hour))
	r := &fakeRenewer{
		delay: 30 * time.Millisecond,
		renew: func(int, string) (*core.Token, error) { return &core.Token{Value: fresh}, nil },
	}
	svc, _ := newService(t, "maersk", st, r)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// stagger so some rejections arrive after the renewal finished
			time.Sleep(time.Duration(i*10) * time.Millisecond)
			svc.Invalidate(ctx, "A", old)
			tok, err := svc.GetValidToken(ctx, "A", false)
			if assert.NoError(t, err) {
				assert.Equal(t, fresh, tok.Value)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestInvalidate_EmptyValueRejectsStoredToken(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	old := jwtWithExp(t, "old", testNow.Add(time.Hour))
	require.NoError(t, st.Save(ctx, &core.Token{Carrier: "maersk", Scope: "A", Value: old}))
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) {
		return &core.Token{Value: jwtWithExp(t, "fresh", testNow.Add(time.Hour))}, nil
	}}
	svc, auditor := newService(t, "maersk", st, r)

	svc.Invalidate(ctx, "A", "")
	assert.Equal(t, StateExpired, statusOf(t, svc, "A").State)

	tok, err := svc.GetValidToken(ctx, "A", false)
	require.NoError(t, err)
	assert.NotEqual(t, old, tok.Value)

	entries, _ := auditor.Find(func(e core.AuditEntry) bool { return e.Action == "token.invalidate" }, 10)
	assert.Len(t, entries, 1)
}

func TestBulkRenewal_OneSessionServesEveryScope(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	tokA := jwtWithExp(t, "a", testNow.Add(time.Hour))
	tokB := jwtWithExp(t, "b", testNow.Add(time.Hour))

	r := &fakeBulkRenewer{all: func(int) (*core.BulkRenewal, error) {
		return &core.BulkRenewal{
			Tokens: map[string]*core.Token{
				"305S3073SPA": {Value: tokA, CustomerName: "ACME"},
				"30501112445": {Value: tokB},
			},
			Failures: []core.ScopeFailure{{Scope: "30501348288", Reason: "token did not appear"}},
		}, nil
	}}
	svc, auditor := newService(t, "maersk", st, r)

	tok, err := svc.GetValidToken(ctx, "305S3073SPA", false)
	require.NoError(t, err)
	assert.Equal(t, tokA, tok.Value)
	assert.Equal(t, "ACME", tok.CustomerName)

	tok, err = svc.GetValidToken(ctx, "30501112445", false)
	require.NoError(t, err)
	assert.Equal(t, tokB, tok.Value)
	assert.Equal(t, core.IssuedCached, tok.IssuedVia)
	assert.Equal(t, int32(1), r.calls.Load())

	all, err := st.LoadAll(ctx, "maersk")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// a customer the session could not capture fails without a partial token
	tok, err = svc.GetValidToken(ctx, "30501348288", false)
	assert.Nil(t, tok)
	require.ErrorIs(t, err, core.ErrRenewalFailed)
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, StateRenewFailed, statusOf(t, svc, "30501348288").State)

	entries, _ := auditor.GetRecent(10)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Metadata["captured"])
}

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()

	t.Run("bulk", func(t *testing.T) {
		r := &fakeBulkRenewer{all: func(int) (*core.BulkRenewal, error) {
			return &core.BulkRenewal{Tokens: map[string]*core.Token{
				"A": {Value: jwtWithExp(t, "a", testNow.Add(time.Hour))},
				"B": {Value: jwtWithExp(t, "b", testNow.Add(time.Hour))},
			}}, nil
		}}
		svc, _ := newService(t, "maersk", store.NewInMemoryCredentialStore(), r)

		tokens, failures, err := svc.RefreshAll(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, tokens, 2)
		assert.Empty(t, failures)
		assert.Equal(t, int32(1), r.calls.Load())
	})

	t.Run("single tenant", func(t *testing.T) {
		r := &fakeRenewer{renew: func(n int, scope string) (*core.Token, error) {
			return &core.Token{Value: fmt.Sprintf("eyJ-%s-%d", scope, n)}, nil
		}}
		svc, _ := newService(t, "hapag", store.NewInMemoryCredentialStore(), r)

		tokens, failures, err := svc.RefreshAll(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, failures)
		require.Contains(t, tokens, core.DefaultScope)
		assert.Equal(t, "eyJ-default-1", tokens[core.DefaultScope].Value)
	})

	t.Run("everything failed", func(t *testing.T) {
		r := &fakeBulkRenewer{all: func(int) (*core.BulkRenewal, error) {
			return nil, errors.New("login page changed")
		}}
		svc, _ := newService(t, "maersk", store.NewInMemoryCredentialStore(), r)

		_, _, err := svc.RefreshAll(ctx, nil)
		require.ErrorIs(t, err, core.ErrRenewalFailed)
	})
}

func TestGetValidToken_CancelledWaiter(t *testing.T) {
	r := &fakeRenewer{
		delay: time.Second,
		renew: func(int, string) (*core.Token, error) { return &core.Token{Value: "x"}, nil },
	}
	svc, _ := newService(t, "hapag", store.NewInMemoryCredentialStore(), r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.GetValidToken(ctx, "", false)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func statusOf(t *testing.T, svc *TokenService, scope string) ScopeStatus {
	t.Helper()
	for _, st := range svc.Status(context.Background()) {
		if st.Scope == scope {
			return st
		}
	}
	t.Fatalf("no status for scope %s", scope)
	return ScopeStatus{}
}

func TestInvalidate_ReissuedValueIsAcceptedAfterRenewal(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryCredentialStore()
	value := jwtWithExp(t, "hapag-session", testNow.Add(time.Hour))
	require.NoError(t, st.Save(ctx, &core.Token{Carrier: "hapag", Scope: core.DefaultScope, Value: value}))

	// upstream keeps the session alive and hands out the same cookie again
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) {
		return &core.Token{Value: value}, nil
	}}
	svc, _ := newService(t, "hapag", st, r)

	svc.Invalidate(ctx, "", value)
	for i := 0; i < 4; i++ {
		tok, err := svc.GetValidToken(ctx, "", false)
		require.NoError(t, err)
		assert.Equal(t, value, tok.Value)
	}
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, StateValid, statusOf(t, svc, core.DefaultScope).State)
}

func TestGetValidToken_JoinerOutlivesStarterDeadline(t *testing.T) {
	fresh := jwtWithExp(t, "new", testNow.Add(time.Hour))
	r := &fakeRenewer{
		delay: 200 * time.Millisecond,
		renew: func(int, string) (*core.Token, error) { return &core.Token{Value: fresh}, nil },
	}
	svc, _ := newService(t, "hapag", store.NewInMemoryCredentialStore(), r)

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	starterErr := make(chan error, 1)
	go func() {
		_, err := svc.GetValidToken(short, "", false)
		starterErr <- err
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	tok, err := svc.GetValidToken(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, fresh, tok.Value)

	require.ErrorIs(t, <-starterErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStatus_CacheLookupKeepsRenewingState(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	fresh := jwtWithExp(t, "new", testNow.Add(time.Hour))
	r := &fakeRenewer{renew: func(int, string) (*core.Token, error) {
		close(started)
		<-release
		return &core.Token{Value: fresh}, nil
	}}
	svc, _ := newService(t, "hapag", store.NewInMemoryCredentialStore(), r)

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetValidToken(ctx, "", false)
		done <- err
	}()
	<-started
	assert.Equal(t, StateRenewing, statusOf(t, svc, core.DefaultScope).State)

	// another caller finds nothing in the store while the login is still running
	assert.Nil(t, svc.cached(ctx, core.DefaultScope))
	assert.Equal(t, StateRenewing, statusOf(t, svc, core.DefaultScope).State)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateValid, statusOf(t, svc, core.DefaultScope).State)
}
