package oracle

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const DefaultProbeTimeout = 10 * time.Second

var _ core.Oracle = (*ProbeOracle)(nil)

// ProbeOracle asks upstream: a cheap authorized GET that answers 200 means valid.
type ProbeOracle struct {
	URL     string
	Timeout time.Duration

	// Decorate sets carrier specific headers next to the bearer header.
	Decorate func(h http.Header, token string)

	HTTPClient *http.Client
}

func NewProbeOracle(url string, decorate func(h http.Header, token string)) *ProbeOracle {
	return &ProbeOracle{
		URL:        url,
		Timeout:    DefaultProbeTimeout,
		Decorate:   decorate,
		HTTPClient: http.DefaultClient,
	}
}

func (o *ProbeOracle) IsValid(ctx context.Context, token *core.Token) bool {
	if token == nil || token.Value == "" {
		return false
	}
	logger := log.Ctx(ctx).With().Str("probe", o.URL).Logger()

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot build probe request")
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")
	if o.Decorate != nil {
		o.Decorate(req.Header, token.Value)
	}

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("probe failed, treating token as invalid")
		return false
	}
	defer func(body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, body)
		_ = body.Close()
	}(resp.Body)

	logger.Debug().Int("status", resp.StatusCode).Msg("probe answered")
	return resp.StatusCode == http.StatusOK
}
