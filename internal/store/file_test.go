package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

func TestFileCredentialStore_LoadMissing(t *testing.T) {
	s, err := NewFileCredentialStore(t.TempDir())
	require.NoError(t, err)

	tok, err := s.Load(context.Background(), "hapag", core.DefaultScope)
	require.NoError(t, err)
	assert.Nil(t, tok)

	all, err := s.LoadAll(context.Background(), "hapag")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileCredentialStore_RoundTripVerbatim(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileCredentialStore(dir)
	require.NoError(t, err)

	// values are opaque and must come back byte-for-byte
	value := "eyJhbGciOiJSUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln+/=é "
	captured := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, &core.Token{
		Carrier:      "maersk",
		Scope:        "305S3073SPA",
		Value:        value,
		CustomerName: "ACME SPA",
		CapturedAt:   captured,
		Source:       core.SourceStorage,
	}))

	got, err := s.Load(ctx, "maersk", "305S3073SPA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, value, got.Value)
	assert.Equal(t, "ACME SPA", got.CustomerName)
	assert.True(t, captured.Equal(got.CapturedAt))

	raw, err := os.ReadFile(filepath.Join(dir, "maersk_tokens.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	entry := doc["tokens"].(map[string]any)["305S3073SPA"].(map[string]any)
	assert.Equal(t, "305S3073SPA", entry["scope"])
	assert.Equal(t, value, entry["token_value"])
	assert.NotEmpty(t, entry["captured_at"])
}

func TestFileCredentialStore_SaveReplacesOnlyItsScope(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileCredentialStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveAll(ctx, "maersk", map[string]*core.Token{
		"A": {Value: "token-a-1"},
		"B": {Value: "token-b-1"},
	}))
	require.NoError(t, s.Save(ctx, &core.Token{Carrier: "maersk", Scope: "A", Value: "token-a-2"}))

	all, err := s.LoadAll(ctx, "maersk")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "token-a-2", all["A"].Value)
	assert.Equal(t, "token-b-1", all["B"].Value)
}

func TestFileCredentialStore_CorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileCredentialStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("hapag"), []byte("{not json"), 0o600))

	tok, err := s.Load(context.Background(), "hapag", core.DefaultScope)
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, s.Save(context.Background(), &core.Token{Carrier: "hapag", Scope: core.DefaultScope, Value: "fresh"}))
	tok, err = s.Load(context.Background(), "hapag", core.DefaultScope)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "fresh", tok.Value)
}

func TestFileCredentialStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileCredentialStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scope := string(rune('a' + i))
			assert.NoError(t, s.Save(ctx, &core.Token{Carrier: "maersk", Scope: scope, Value: "v-" + scope}))
		}(i)
	}
	wg.Wait()

	all, err := s.LoadAll(ctx, "maersk")
	require.NoError(t, err)
	assert.Len(t, all, 20)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
