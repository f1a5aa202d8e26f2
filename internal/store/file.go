package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var _ core.CredentialStore = (*FileCredentialStore)(nil)

// tokenFile is the on-disk document of one carrier.
type tokenFile struct {
	Carrier   string                 `json:"carrier"`
	UpdatedAt time.Time              `json:"updated_at"`
	Tokens    map[string]*core.Token `json:"tokens"`
}

// FileCredentialStore keeps one JSON document per carrier in a directory.
// Writes go to a temp file in the same directory which is synced and renamed
// over the document, so readers never observe a partial file.
type FileCredentialStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileCredentialStore(dir string) (*FileCredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating token directory '%s': %w", dir, err)
	}
	return &FileCredentialStore{dir: dir}, nil
}

// Path returns the token document of the carrier.
func (s *FileCredentialStore) Path(carrier string) string {
	return filepath.Join(s.dir, carrier+"_tokens.json")
}

func (s *FileCredentialStore) Load(_ context.Context, carrier, scope string) (*core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read(carrier)
	tok, ok := doc.Tokens[scope]
	if !ok || tok == nil || tok.Value == "" {
		return nil, nil
	}
	return tok, nil
}

func (s *FileCredentialStore) LoadAll(_ context.Context, carrier string) (map[string]*core.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read(carrier)
	out := make(map[string]*core.Token, len(doc.Tokens))
	for scope, tok := range doc.Tokens {
		if tok == nil || tok.Value == "" {
			continue
		}
		out[scope] = tok
	}
	return out, nil
}

func (s *FileCredentialStore) Save(ctx context.Context, token *core.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	return s.SaveAll(ctx, token.Carrier, map[string]*core.Token{token.Scope: token})
}

func (s *FileCredentialStore) SaveAll(_ context.Context, carrier string, tokens map[string]*core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read(carrier)
	for scope, tok := range tokens {
		if tok == nil || tok.Value == "" {
			continue
		}
		cpy := *tok
		cpy.Carrier = carrier
		cpy.Scope = scope
		doc.Tokens[scope] = &cpy
	}
	doc.Carrier = carrier
	doc.UpdatedAt = time.Now().UTC()

	return s.write(carrier, doc)
}

// read returns the carrier document. A missing or unreadable document is
// treated as empty so the next renewal replaces it.
func (s *FileCredentialStore) read(carrier string) *tokenFile {
	doc := &tokenFile{Carrier: carrier, Tokens: make(map[string]*core.Token)}

	path := s.Path(carrier)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("cannot read token file, treating as empty")
		}
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("token file is corrupt, treating as empty")
		return &tokenFile{Carrier: carrier, Tokens: make(map[string]*core.Token)}
	}
	if doc.Tokens == nil {
		doc.Tokens = make(map[string]*core.Token)
	}
	for scope, tok := range doc.Tokens {
		if tok != nil {
			tok.Carrier = carrier
			tok.Scope = scope
		}
	}
	return doc
}

func (s *FileCredentialStore) write(carrier string, doc *tokenFile) error {
	path := s.Path(carrier)

	file, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempFile := file.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tempFile)
	}()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("encoding tokens: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tempFile, 0o600); err != nil {
		return fmt.Errorf("restricting temp file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("replacing token file '%s': %w", path, err)
	}
	return nil
}
