package client

import (
	"context"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/api"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/buildinfo"
)

// Info returns the build information of the daemon.
func (c *Client) Info(ctx context.Context) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().setPath(api.AboutRoute).build(), &info)
	return &info, correlation, err
}

// Healthy reports whether the daemon answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.get(ctx, c.url().setPath(api.HealthCheckRoute).build(), nil)
	return err == nil
}
