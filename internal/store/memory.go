package store

import (
	"context"
	"errors"
	"sync"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var _ core.CredentialStore = (*InMemoryCredentialStore)(nil)

type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]map[string]core.Token
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		tokens: make(map[string]map[string]core.Token),
	}
}

func (s *InMemoryCredentialStore) Load(_ context.Context, carrier, scope string) (*core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[carrier][scope]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *InMemoryCredentialStore) LoadAll(_ context.Context, carrier string) (map[string]*core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*core.Token, len(s.tokens[carrier]))
	for scope, tok := range s.tokens[carrier] {
		t := tok
		out[scope] = &t
	}
	return out, nil
}

func (s *InMemoryCredentialStore) Save(ctx context.Context, token *core.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	return s.SaveAll(ctx, token.Carrier, map[string]*core.Token{token.Scope: token})
}

func (s *InMemoryCredentialStore) SaveAll(_ context.Context, carrier string, tokens map[string]*core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens[carrier] == nil {
		s.tokens[carrier] = make(map[string]core.Token)
	}
	for scope, tok := range tokens {
		if tok == nil || tok.Value == "" {
			continue
		}
		cpy := *tok
		cpy.Carrier = carrier
		cpy.Scope = scope
		s.tokens[carrier][scope] = cpy
	}
	return nil
}
