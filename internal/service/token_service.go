package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/audit"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/metrics"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/oracle"
)

// bulkFlightKey is the single-flight key of carriers whose login yields every scope at once.
const bulkFlightKey = "*"

// TokenService hands out valid tokens for one carrier. It is the only component
// that decides when the browser login runs.
type TokenService struct {
	carrier string
	store   core.CredentialStore
	oracle  core.Oracle
	renewer core.Renewer
	auditor core.Auditor

	// Now can be overridden in tests.
	Now func() time.Time

	flights singleflight.Group

	// session serializes browser logins of this carrier across flight keys
	session sync.Mutex

	mu       sync.Mutex
	status   map[string]*ScopeStatus
	rejected map[string]string
}

func NewTokenService(
	carrier string,
	store core.CredentialStore,
	oracle core.Oracle,
	renewer core.Renewer,
	auditor core.Auditor,
) *TokenService {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	return &TokenService{
		carrier:  carrier,
		store:    store,
		oracle:   oracle,
		renewer:  renewer,
		auditor:  auditor,
		Now:      time.Now,
		status:   make(map[string]*ScopeStatus),
		rejected: make(map[string]string),
	}
}

func (s *TokenService) Carrier() string {
	return s.carrier
}

// flightResult is shared by every caller joined to one renewal.
type flightResult struct {
	tokens    map[string]*core.Token
	failures  []core.ScopeFailure
	ranDriver bool
}

// GetValidToken returns a token for scope that the oracle accepts, renewing it when needed.
// With force the cache is skipped and a renewal always runs (joined with concurrent ones).
// On failure it returns nil and an error wrapping core.ErrRenewalFailed; it never retries internally.
func (s *TokenService) GetValidToken(ctx context.Context, scope string, force bool) (*core.Token, error) {
	if scope == "" {
		scope = core.DefaultScope
	}
	logger := log.Ctx(ctx).With().Str("carrier", s.carrier).Str("scope", scope).Logger()

	if !force {
		if tok := s.cached(ctx, scope); tok != nil {
			metrics.TokenRequests.WithLabelValues(s.carrier, "cache_hit").Inc()
			logger.Debug().Str("fingerprint", tok.Fingerprint()).Msg("using cached token")
			return tok, nil
		}
	}

	// a caller whose scope was not part of a flight that never reached the driver
	// (someone else had just renewed) tries once more with its own flight
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.join(ctx, scope, force)
		if err != nil {
			metrics.TokenRequests.WithLabelValues(s.carrier, "failed").Inc()
			return nil, err
		}
		if tok, ok := res.tokens[scope]; ok {
			outcome := "renewed"
			if tok.IssuedVia == core.IssuedCached {
				outcome = "cache_hit"
			}
			metrics.TokenRequests.WithLabelValues(s.carrier, outcome).Inc()
			cpy := *tok
			return &cpy, nil
		}
		if res.ranDriver {
			break
		}
		if tok := s.cached(ctx, scope); tok != nil {
			metrics.TokenRequests.WithLabelValues(s.carrier, "cache_hit").Inc()
			return tok, nil
		}
	}

	s.setState(scope, StateRenewFailed, nil, "scope not captured by renewal")
	metrics.TokenRequests.WithLabelValues(s.carrier, "failed").Inc()
	logger.Warn().Msg("renewal finished without a token for this scope")
	return nil, &core.RenewalError{Carrier: s.carrier, Step: "scope " + scope}
}

// Invalidate records that upstream rejected the given token value. The next GetValidToken
// for scope will not return it and therefore renews. A rejection of a value that is no
// longer the stored one is ignored: another caller already renewed.
// An empty value invalidates whatever is stored.
func (s *TokenService) Invalidate(ctx context.Context, scope, rejected string) {
	if scope == "" {
		scope = core.DefaultScope
	}
	logger := log.Ctx(ctx).With().Str("carrier", s.carrier).Str("scope", scope).Logger()

	current, err := s.store.Load(ctx, s.carrier, scope)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot load stored token while invalidating")
	}
	if rejected == "" && current != nil {
		rejected = current.Value
	}
	if rejected == "" {
		return
	}
	if current != nil && current.Value != rejected {
		logger.Debug().Msg("ignoring rejection of a token that was already replaced")
		return
	}

	s.mu.Lock()
	s.rejected[scope] = rejected
	s.mu.Unlock()
	s.setState(scope, StateExpired, current, "rejected by upstream")

	metrics.TokenInvalidations.WithLabelValues(s.carrier).Inc()
	entry := core.AuditEntry{
		ID:               core.RunID(ctx),
		Time:             s.Now(),
		Action:           "token.invalidate",
		Carrier:          s.carrier,
		Scope:            scope,
		Success:          true,
		TokenFingerprint: core.Fingerprint(rejected),
	}
	if err := s.auditor.Log(entry); err != nil {
		logger.Error().Err(err).Msg("failed to write audit log entry for token invalidation")
	}
	logger.Info().Str("fingerprint", entry.TokenFingerprint).Msg("token invalidated")
}

// RefreshAll renews the given scopes unconditionally. Carriers with a bulk login renew
// every scope in one session and ignore the list. Failures of single scopes are reported,
// not returned as error; the error is only set when nothing could be renewed.
func (s *TokenService) RefreshAll(ctx context.Context, scopes []string) (map[string]*core.Token, []core.ScopeFailure, error) {
	if _, ok := s.renewer.(core.BulkRenewer); ok {
		res, err := s.join(ctx, bulkFlightKey, true)
		if err != nil {
			return nil, nil, err
		}
		return res.tokens, res.failures, nil
	}

	if len(scopes) == 0 {
		scopes = []string{core.DefaultScope}
	}
	tokens := make(map[string]*core.Token, len(scopes))
	var failures []core.ScopeFailure
	var lastErr error
	for _, scope := range scopes {
		tok, err := s.GetValidToken(ctx, scope, true)
		if err != nil {
			failures = append(failures, core.ScopeFailure{Scope: scope, Reason: err.Error()})
			lastErr = err
			continue
		}
		tokens[scope] = tok
	}
	if len(tokens) == 0 && lastErr != nil {
		return nil, failures, lastErr
	}
	return tokens, failures, nil
}

// Status returns a snapshot of every known scope, stored or touched in this process.
func (s *TokenService) Status(ctx context.Context) []ScopeStatus {
	stored, err := s.store.LoadAll(ctx, s.carrier)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("carrier", s.carrier).Msg("cannot list stored tokens")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ScopeStatus)
	for scope, tok := range stored {
		st := ScopeStatus{
			Carrier:      s.carrier,
			Scope:        scope,
			CustomerName: tok.CustomerName,
			State:        StateCachedUnverified,
			Fingerprint:  tok.Fingerprint(),
			CapturedAt:   tok.CapturedAt,
		}
		if exp, ok := oracle.ExpiryOf(tok.Value); ok {
			st.Expiry = exp
		}
		out[scope] = st
	}
	for scope, st := range s.status {
		merged := *st
		if base, ok := out[scope]; ok && merged.Fingerprint == "" {
			merged.Fingerprint = base.Fingerprint
			merged.Expiry = base.Expiry
			merged.CapturedAt = base.CapturedAt
			merged.CustomerName = base.CustomerName
		}
		out[scope] = merged
	}

	list := make([]ScopeStatus, 0, len(out))
	for _, st := range out {
		list = append(list, st)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Scope < list[j].Scope })
	return list
}

// cached returns the stored token if it is usable, nil otherwise.
// A scope that is being renewed keeps its RENEWING state; only the flight moves it on.
func (s *TokenService) cached(ctx context.Context, scope string) *core.Token {
	tok, err := s.store.Load(ctx, s.carrier, scope)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("carrier", s.carrier).Str("scope", scope).Msg("cannot load stored token")
		s.observe(scope, StateNoToken, nil, err.Error())
		return nil
	}
	if tok == nil {
		s.observe(scope, StateNoToken, nil, "")
		return nil
	}
	s.observe(scope, StateCachedUnverified, tok, "")

	if s.isRejected(scope, tok.Value) || !s.oracle.IsValid(ctx, tok) {
		s.observe(scope, StateExpired, tok, "")
		return nil
	}

	s.fill(tok, scope)
	tok.IssuedVia = core.IssuedCached
	s.observe(scope, StateValid, tok, "")
	return tok
}

// join runs or joins the renewal flight of scope.
func (s *TokenService) join(ctx context.Context, scope string, force bool) (*flightResult, error) {
	key := scope
	if _, ok := s.renewer.(core.BulkRenewer); ok {
		key = bulkFlightKey
	}

	// the flight outlives the caller that started it; each caller leaves on its own ctx below
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.renew(flightCtx, scope, force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*flightResult), nil
	}
}

// renew is the body of a flight. Non-forced flights re-check the store first so a flight
// started right after another one finished reuses its token.
func (s *TokenService) renew(ctx context.Context, scope string, force bool) (*flightResult, error) {
	if !force && scope != bulkFlightKey {
		if tok := s.cached(ctx, scope); tok != nil {
			return &flightResult{tokens: map[string]*core.Token{scope: tok}}, nil
		}
	}

	s.session.Lock()
	defer s.session.Unlock()

	logger := log.Ctx(ctx).With().Str("carrier", s.carrier).Str("scope", scope).Logger()
	start := s.Now()

	entry := core.AuditEntry{
		ID:      core.RunID(ctx),
		Time:    start,
		Action:  "token.renew",
		Carrier: s.carrier,
		Scope:   scope,
		Forced:  force,
	}
	defer func() {
		entry.Duration = s.Now().Sub(start).Round(time.Millisecond).String()
		if err := s.auditor.Log(entry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log entry for token renewal")
		}
	}()

	bulk, isBulk := s.renewer.(core.BulkRenewer)
	if isBulk {
		s.markRenewing(ctx, scope)
	} else {
		s.setState(scope, StateRenewing, nil, "")
	}
	logger.Info().Bool("forced", force).Msg("starting browser renewal")

	var (
		result *core.BulkRenewal
		err    error
	)
	if isBulk {
		result, err = bulk.RenewAll(ctx)
	} else {
		var tok *core.Token
		if tok, err = s.renewer.Renew(ctx, scope); err == nil {
			result = &core.BulkRenewal{Tokens: map[string]*core.Token{scope: tok}}
		}
	}
	metrics.TokenRenewalDuration.WithLabelValues(s.carrier).Observe(s.Now().Sub(start).Seconds())

	if err == nil && (result == nil || len(validTokens(result.Tokens)) == 0) {
		err = &core.RenewalError{Carrier: s.carrier, Step: "capture", Err: errors.New("no token captured")}
	}
	if err != nil {
		if !errors.Is(err, core.ErrRenewalFailed) {
			err = &core.RenewalError{Carrier: s.carrier, Step: "login", Err: err}
		}
		s.failRenewing(scope, err)
		metrics.TokenRenewals.WithLabelValues(s.carrier, "failure").Inc()
		entry.Error = err.Error()
		logger.Error().Err(err).Msg("browser renewal failed")
		return nil, err
	}

	tokens := validTokens(result.Tokens)
	capturedAt := s.Now()
	for sc, tok := range tokens {
		tok.Carrier = s.carrier
		tok.Scope = sc
		if tok.CapturedAt.IsZero() {
			tok.CapturedAt = capturedAt
		}
		s.fill(tok, sc)
		tok.IssuedVia = core.IssuedRenewed
	}

	if err := s.store.SaveAll(ctx, s.carrier, tokens); err != nil {
		// the tokens are valid even if they could not be persisted
		logger.Error().Err(err).Msg("failed to persist renewed tokens")
	}

	// a renewal replaces the rejected value, even when upstream hands out the same one again
	s.mu.Lock()
	for sc := range tokens {
		delete(s.rejected, sc)
	}
	s.mu.Unlock()

	for sc, tok := range tokens {
		s.setState(sc, StateValid, tok, "")
	}
	for _, f := range result.Failures {
		s.setState(f.Scope, StateRenewFailed, nil, f.Reason)
	}
	if isBulk {
		// scopes marked renewing that the session did not capture
		s.failRenewing(scope, &core.RenewalError{Carrier: s.carrier, Step: "capture"})
	}

	metrics.TokenRenewals.WithLabelValues(s.carrier, "success").Inc()
	entry.Success = true
	if tok, ok := tokens[scope]; ok {
		entry.TokenFingerprint = tok.Fingerprint()
	}
	entry.Metadata = map[string]any{"captured": len(tokens)}
	if len(result.Failures) > 0 {
		entry.Metadata["skipped"] = result.Failures
	}
	logger.Info().
		Int("captured", len(tokens)).
		Int("skipped", len(result.Failures)).
		Dur("took", s.Now().Sub(start)).
		Msg("browser renewal finished")

	return &flightResult{tokens: tokens, failures: result.Failures, ranDriver: true}, nil
}

func validTokens(in map[string]*core.Token) map[string]*core.Token {
	out := make(map[string]*core.Token, len(in))
	for sc, tok := range in {
		if tok != nil && tok.Value != "" {
			out[sc] = tok
		}
	}
	return out
}

func (s *TokenService) fill(tok *core.Token, scope string) {
	if tok.Scope == "" {
		tok.Scope = scope
	}
	if tok.Carrier == "" {
		tok.Carrier = s.carrier
	}
	if tok.Expiry.IsZero() {
		if exp, ok := oracle.ExpiryOf(tok.Value); ok {
			tok.Expiry = exp
		}
	}
}

func (s *TokenService) isRejected(scope, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected[scope] == value
}

func (s *TokenService) setState(scope string, state State, tok *core.Token, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[scope]
	if !ok {
		st = &ScopeStatus{Carrier: s.carrier, Scope: scope}
		s.status[scope] = st
	}
	if st.State != state {
		log.Debug().
			Str("carrier", s.carrier).
			Str("scope", scope).
			Str("from", string(st.State)).
			Str("to", string(state)).
			Msg("token state changed")
		st.ChangedAt = s.Now()
	}
	st.State = state
	st.LastError = lastErr
	if tok != nil {
		st.Fingerprint = tok.Fingerprint()
		st.CapturedAt = tok.CapturedAt
		st.Expiry = tok.Expiry
		if tok.CustomerName != "" {
			st.CustomerName = tok.CustomerName
		}
	}
}

// observe is setState for cache lookups: it leaves a scope in RENEWING alone.
func (s *TokenService) observe(scope string, state State, tok *core.Token, lastErr string) {
	s.mu.Lock()
	st, ok := s.status[scope]
	renewing := ok && st.State == StateRenewing
	s.mu.Unlock()
	if renewing {
		return
	}
	s.setState(scope, state, tok, lastErr)
}

// markRenewing flags every scope known for the carrier, since a bulk login replaces them all.
func (s *TokenService) markRenewing(ctx context.Context, scope string) {
	stored, _ := s.store.LoadAll(ctx, s.carrier)
	if scope != bulkFlightKey {
		s.setState(scope, StateRenewing, nil, "")
	}
	for sc := range stored {
		s.setState(sc, StateRenewing, nil, "")
	}
}

// failRenewing moves every scope still in RENEWING to RENEW_FAILED.
func (s *TokenService) failRenewing(_ string, err error) {
	s.mu.Lock()
	var pending []string
	for sc, st := range s.status {
		if st.State == StateRenewing {
			pending = append(pending, sc)
		}
	}
	s.mu.Unlock()

	for _, sc := range pending {
		s.setState(sc, StateRenewFailed, nil, err.Error())
	}
}
