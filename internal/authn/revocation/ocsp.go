package revocation

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/ocsp"
)

type ocspStatus struct {
	status    int
	revokedAt time.Time
}

// OCSPChecker queries the OCSP responders listed in the certificate. The issuer needed to
// build the request must be present in Options.Issuers.
type OCSPChecker struct {
	opts  Options
	cache *expirable.LRU[string, ocspStatus]
}

// NewOCSPChecker creates an OCSP checker.
func NewOCSPChecker(opts Options) *OCSPChecker {
	opts = opts.withDefaults()
	return &OCSPChecker{
		opts:  opts,
		cache: expirable.NewLRU[string, ocspStatus](opts.CacheSize, nil, opts.CacheTTL),
	}
}

func (c *OCSPChecker) Check(ctx context.Context, cert *x509.Certificate) error {
	issuer := c.opts.issuerFor(cert.RawIssuer)
	if issuer == nil {
		// Trust anchors have no configured issuer other than themselves.
		if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			return nil
		}
		return c.opts.unavailable(cert, "ocsp", errors.New("issuer certificate not configured"))
	}
	if len(cert.OCSPServer) == 0 {
		return c.opts.unavailable(cert, "ocsp", errors.New("certificate has no ocsp server"))
	}

	key := hex.EncodeToString(cert.RawIssuer) + ":" + cert.SerialNumber.String()
	if cached, ok := c.cache.Get(key); ok {
		return c.evaluate(cert, cached)
	}

	request, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA1})
	if err != nil {
		return c.opts.unavailable(cert, "ocsp", fmt.Errorf("failed to create ocsp request: %w", err))
	}

	var lastErr error
	for _, server := range cert.OCSPServer {
		resp, err := c.query(ctx, server, request, cert, issuer)
		if err != nil {
			c.opts.Logger.Debug("ocsp responder failed",
				slog.String("server", server),
				slog.Any("error", err),
			)
			lastErr = err
			continue
		}

		status := ocspStatus{status: resp.Status, revokedAt: resp.RevokedAt}
		if resp.Status != ocsp.Unknown {
			c.cache.Add(key, status)
		}
		return c.evaluate(cert, status)
	}

	return c.opts.unavailable(cert, "ocsp", lastErr)
}

func (c *OCSPChecker) evaluate(cert *x509.Certificate, status ocspStatus) error {
	switch status.status {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		return revoked(cert, status.revokedAt)
	default:
		return c.opts.unavailable(cert, "ocsp", errors.New("responder returned unknown status"))
	}
}

func (c *OCSPChecker) query(
	ctx context.Context,
	server string,
	request []byte,
	cert, issuer *x509.Certificate,
) (*ocsp.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to create ocsp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocsp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocsp server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read ocsp response: %w", err)
	}

	parsed, err := ocsp.ParseResponseForCert(data, cert, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ocsp response: %w", err)
	}
	if !parsed.NextUpdate.IsZero() && c.opts.Clock().After(parsed.NextUpdate) {
		return nil, fmt.Errorf("ocsp response expired at %s", parsed.NextUpdate)
	}
	return parsed, nil
}
