package core

import (
	"context"

	"github.com/rs/xid"
)

type runIDKey struct{}

// WithRunID attaches a correlation id to ctx. An empty id generates a new one.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = xid.New().String()
	}
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the correlation id of ctx or an empty string.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
