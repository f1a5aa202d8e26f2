package browser

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// DefaultStorageHints match storage keys that are likely to hold a token.
var DefaultStorageHints = []string{"token", "auth"}

// Extraction describes where a token may live, in priority order:
// cookies, then web storage, then the page content.
type Extraction struct {
	// Cookies are exact cookie names.
	Cookies []string

	// StorageKeys are exact storage keys, tried before any hinted key.
	StorageKeys []string

	// StorageHints are substrings; any storage key containing one is a candidate.
	StorageHints []string

	// PagePatterns are matched against the page HTML; the first submatch is the token.
	PagePatterns []*regexp.Regexp

	// Accept filters candidates. Nil accepts any non-empty value.
	Accept func(value string) bool
}

func (e Extraction) accept(value string) bool {
	if value == "" {
		return false
	}
	if e.Accept == nil {
		return true
	}
	return e.Accept(value)
}

// Extract returns the first acceptable token and where it came from, or ErrTokenNotFound.
// A source that cannot be read is logged and the next one is tried.
func Extract(ctx context.Context, s Session, e Extraction) (string, core.TokenSource, error) {
	logger := log.Ctx(ctx)

	if len(e.Cookies) > 0 {
		cookies, err := s.Cookies(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("cannot read cookies, trying storage")
		}
		for _, name := range e.Cookies {
			for _, c := range cookies {
				if c.Name == name && e.accept(c.Value) {
					return c.Value, core.SourceCookie, nil
				}
			}
		}
	}

	if len(e.StorageKeys) > 0 || len(e.StorageHints) > 0 {
		items, err := s.Storage(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("cannot read web storage, trying page content")
		}
		for _, key := range e.StorageKeys {
			if v := items[key]; e.accept(v) {
				return v, core.SourceStorage, nil
			}
		}
		keys := make([]string, 0, len(items))
		for k := range items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lower := strings.ToLower(k)
			for _, hint := range e.StorageHints {
				if strings.Contains(lower, hint) && e.accept(items[k]) {
					return items[k], core.SourceStorage, nil
				}
			}
		}
	}

	if len(e.PagePatterns) > 0 {
		html, err := s.HTML(ctx)
		if err != nil {
			return "", "", err
		}
		for _, re := range e.PagePatterns {
			m := re.FindStringSubmatch(html)
			if len(m) > 1 && e.accept(m[1]) {
				return m[1], core.SourcePage, nil
			}
		}
	}

	return "", "", ErrTokenNotFound
}

// Poll calls fn every interval until it reports done, at most attempts times.
func Poll[T any](ctx context.Context, interval time.Duration, attempts int, fn func(ctx context.Context) (T, bool)) (T, error) {
	var zero T
	for i := 0; i < attempts; i++ {
		if v, ok := fn(ctx); ok {
			return v, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(interval):
		}
	}
	return zero, fmt.Errorf("gave up after %d attempts", attempts)
}
