package client

import (
	"context"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

type ListAuditsOpts struct {
	Limit uint

	ID          string
	Carrier     string
	Scope       string
	Action      string
	Fingerprint string
}

// ListAudits retrieves the latest token lifecycle audit entries matching opts.
func (c *Client) ListAudits(ctx context.Context, opts ListAuditsOpts) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	for key, value := range map[string]string{
		"id":          opts.ID,
		"carrier":     opts.Carrier,
		"scope":       opts.Scope,
		"action":      opts.Action,
		"fingerprint": opts.Fingerprint,
	} {
		if value != "" {
			ub = ub.addQueryParam(key, value)
		}
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}
