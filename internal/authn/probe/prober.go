// Package probe verifies that a URL presented as a credential is reachable and answers
// with an acceptable status.
package probe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"
)

// DefaultAcceptableCodes are the status codes treated as a valid endpoint.
var DefaultAcceptableCodes = []int{http.StatusOK, http.StatusFound, http.StatusNotModified}

// EndpointProber decides whether an endpoint is valid. Implementations never return an
// error; any failure to reach the endpoint yields false.
type EndpointProber interface {
	IsValidEndPoint(ctx context.Context, endpoint *url.URL) bool
}

// HTTPProber issues a GET request without following redirects.
type HTTPProber struct {
	client          *http.Client
	acceptableCodes []int
	logger          *slog.Logger
}

// NewHTTPProber creates a prober with the given timeout and acceptable status codes.
// Empty acceptableCodes falls back to DefaultAcceptableCodes.
func NewHTTPProber(timeout time.Duration, acceptableCodes []int, logger *slog.Logger) *HTTPProber {
	if len(acceptableCodes) == 0 {
		acceptableCodes = DefaultAcceptableCodes
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		acceptableCodes: acceptableCodes,
		logger:          logger,
	}
}

// IsValidEndPoint reports whether endpoint answered with an acceptable status code.
func (p *HTTPProber) IsValidEndPoint(ctx context.Context, endpoint *url.URL) bool {
	if endpoint == nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		p.logger.Debug("invalid probe request", slog.String("endpoint", endpoint.Redacted()), slog.Any("error", err))
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("endpoint probe failed", slog.String("endpoint", endpoint.Redacted()), slog.Any("error", err))
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	ok := slices.Contains(p.acceptableCodes, resp.StatusCode)
	if !ok {
		p.logger.Debug("endpoint probe rejected",
			slog.String("endpoint", endpoint.Redacted()),
			slog.Int("status_code", resp.StatusCode),
		)
	}
	return ok
}
