package client

import (
	"context"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/service"
)

// TokenStates returns the lifecycle state of the daemon's tokens. An empty carrier returns all of them.
func (c *Client) TokenStates(ctx context.Context, carrier string) ([]service.ScopeStatus, error) {
	ub := c.url().setPath(api.TokenStateRoute)
	if carrier != "" {
		ub = ub.addQueryParam("carrier", carrier)
	}
	var res []service.ScopeStatus
	_, err := c.get(ctx, ub.build(), &res)
	return res, err
}
