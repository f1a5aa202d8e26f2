package browser_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser/browsertest"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

func TestExtract_Priority(t *testing.T) {
	pageRe := regexp.MustCompile(`"accessToken":"([^"]+)"`)

	tests := []struct {
		name       string
		session    *browsertest.Session
		extraction browser.Extraction
		wantValue  string
		wantSource core.TokenSource
		wantErr    error
	}{
		{
			name: "cookie wins over storage and page",
			session: &browsertest.Session{
				CookieJar: []browser.Cookie{{Name: "auth_prod", Value: "from-cookie"}},
				Items:     map[string]string{"id_token": "from-storage"},
				Page:      `{"accessToken":"from-page"}`,
			},
			extraction: browser.Extraction{
				Cookies:      []string{"auth_prod"},
				StorageKeys:  []string{"id_token"},
				PagePatterns: []*regexp.Regexp{pageRe},
			},
			wantValue:  "from-cookie",
			wantSource: core.SourceCookie,
		},
		{
			name: "explicit storage key before hinted key",
			session: &browsertest.Session{
				Items: map[string]string{
					"auth_state":     "hinted",
					"[iam]id_token":  "",
					"frJwt":          "explicit",
					"unrelated_item": "x",
				},
			},
			extraction: browser.Extraction{
				StorageKeys:  []string{"[iam]id_token", "frJwt", "id_token"},
				StorageHints: browser.DefaultStorageHints,
			},
			wantValue:  "explicit",
			wantSource: core.SourceStorage,
		},
		{
			name: "hinted storage key",
			session: &browsertest.Session{
				Items: map[string]string{"lang": "pt", "my_Auth_blob": "hinted"},
			},
			extraction: browser.Extraction{
				StorageHints: browser.DefaultStorageHints,
			},
			wantValue:  "hinted",
			wantSource: core.SourceStorage,
		},
		{
			name: "page content as last resort",
			session: &browsertest.Session{
				CookieJar: []browser.Cookie{{Name: "other", Value: "x"}},
				Page:      `<script>window.cfg={"accessToken":"from-page"}</script>`,
			},
			extraction: browser.Extraction{
				Cookies:      []string{"auth_prod"},
				StorageHints: browser.DefaultStorageHints,
				PagePatterns: []*regexp.Regexp{pageRe},
			},
			wantValue:  "from-page",
			wantSource: core.SourcePage,
		},
		{
			name: "unreadable storage falls through to page content",
			session: &browsertest.Session{
				Items: map[string]string{"id_token": "never-read"},
				Page:  `{"accessToken":"from-page"}`,
				Fail:  map[string]error{"storage": errors.New("execution context was destroyed")},
			},
			extraction: browser.Extraction{
				StorageKeys:  []string{"id_token"},
				PagePatterns: []*regexp.Regexp{pageRe},
			},
			wantValue:  "from-page",
			wantSource: core.SourcePage,
		},
		{
			name: "unreadable cookies fall through to storage",
			session: &browsertest.Session{
				Items: map[string]string{"frJwt": "from-storage"},
				Fail:  map[string]error{"cookies": errors.New("target closed")},
			},
			extraction: browser.Extraction{
				Cookies:     []string{"auth_prod"},
				StorageKeys: []string{"frJwt"},
			},
			wantValue:  "from-storage",
			wantSource: core.SourceStorage,
		},
		{
			name: "accept filter skips stale value",
			session: &browsertest.Session{
				Items: map[string]string{"id_token": "previous"},
			},
			extraction: browser.Extraction{
				StorageKeys: []string{"id_token"},
				Accept:      func(v string) bool { return v != "previous" },
			},
			wantErr: browser.ErrTokenNotFound,
		},
		{
			name:    "nothing found",
			session: &browsertest.Session{},
			extraction: browser.Extraction{
				Cookies:      []string{"auth_prod"},
				StorageHints: browser.DefaultStorageHints,
			},
			wantErr: browser.ErrTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, source, err := browser.Extract(context.Background(), tt.session, tt.extraction)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestPoll(t *testing.T) {
	calls := 0
	v, err := browser.Poll(context.Background(), time.Millisecond, 5, func(ctx context.Context) (string, bool) {
		calls++
		return "token", calls == 3
	})
	require.NoError(t, err)
	assert.Equal(t, "token", v)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = browser.Poll(context.Background(), time.Millisecond, 4, func(ctx context.Context) (string, bool) {
		calls++
		return "", false
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = browser.Poll(ctx, time.Hour, 3, func(ctx context.Context) (int, bool) { return 0, false })
	assert.True(t, errors.Is(err, context.Canceled))
}
