package oracle

import (
	"context"
	"strings"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const (
	JWTPrefix          = "eyJ"
	DefaultMinTokenLen = 50
)

var _ core.Oracle = (*PrefixFilter)(nil)

// PrefixFilter rejects values that cannot be a token without any network call
// and hands everything else to Next. Passing the filter alone never makes a token valid.
type PrefixFilter struct {
	Prefix string
	MinLen int
	Next   core.Oracle
}

func NewPrefixFilter(next core.Oracle) *PrefixFilter {
	return &PrefixFilter{
		Prefix: JWTPrefix,
		MinLen: DefaultMinTokenLen,
		Next:   next,
	}
}

// LooksLikeToken is the local part of the check.
func (f *PrefixFilter) LooksLikeToken(value string) bool {
	return strings.HasPrefix(value, f.Prefix) && len(value) > f.MinLen
}

func (f *PrefixFilter) IsValid(ctx context.Context, token *core.Token) bool {
	if token == nil || !f.LooksLikeToken(token.Value) {
		return false
	}
	if f.Next == nil {
		return false
	}
	return f.Next.IsValid(ctx, token)
}
