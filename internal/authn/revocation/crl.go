package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

var errNoMatchingCRL = errors.New("no crl found for certificate issuer")

// CRLChecker checks certificates against certificate revocation lists fetched from the
// certificate's CRL distribution points, or from the configured sources when the
// certificate carries none. Sources are http(s) URLs or local file paths. Only CRLs signed
// by one of Options.Issuers are used; any other CRL counts as unavailable.
type CRLChecker struct {
	opts    Options
	sources []string
	cache   *expirable.LRU[string, *x509.RevocationList]
	group   singleflight.Group
}

// NewCRLChecker creates a CRL checker.
func NewCRLChecker(sources []string, opts Options) *CRLChecker {
	opts = opts.withDefaults()
	return &CRLChecker{
		opts:    opts,
		sources: sources,
		cache:   expirable.NewLRU[string, *x509.RevocationList](opts.CacheSize, nil, opts.CacheTTL),
	}
}

func (c *CRLChecker) Check(ctx context.Context, cert *x509.Certificate) error {
	sources := cert.CRLDistributionPoints
	if len(sources) == 0 {
		// Self-signed trust anchors are not covered by any CRL.
		if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			return nil
		}
		sources = c.sources
	}
	if len(sources) == 0 {
		return c.opts.unavailable(cert, "crl", errors.New("no crl distribution point"))
	}

	var lastErr error = errNoMatchingCRL
	for _, source := range sources {
		crl, err := c.load(ctx, source)
		if err != nil {
			c.opts.Logger.Debug("crl unavailable",
				slog.String("source", source),
				slog.Any("error", err),
			)
			lastErr = err
			continue
		}
		if !bytes.Equal(crl.RawIssuer, cert.RawIssuer) {
			continue
		}

		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber != nil && entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return revoked(cert, entry.RevocationTime)
			}
		}
		return nil
	}

	return c.opts.unavailable(cert, "crl", lastErr)
}

// load returns a current CRL for source from the cache or fetches it.
func (c *CRLChecker) load(ctx context.Context, source string) (*x509.RevocationList, error) {
	if crl, ok := c.cache.Get(source); ok {
		if c.isCurrent(crl) {
			return crl, nil
		}
		c.cache.Remove(source)
	}

	v, err, _ := c.group.Do(source, func() (any, error) {
		data, err := c.fetch(ctx, source)
		if err != nil {
			return nil, err
		}

		crl, err := parseCRL(data)
		if err != nil {
			return nil, err
		}

		issuer := c.opts.issuerFor(crl.RawIssuer)
		if issuer == nil {
			return nil, fmt.Errorf("crl from %s issued by unknown issuer %s", source, crl.Issuer)
		}
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			return nil, fmt.Errorf("invalid crl signature: %w", err)
		}

		c.cache.Add(source, crl)
		return crl, nil
	})
	if err != nil {
		return nil, err
	}

	crl := v.(*x509.RevocationList)
	if !c.isCurrent(crl) {
		c.cache.Remove(source)
		return nil, fmt.Errorf("crl from %s expired at %s", source, crl.NextUpdate)
	}
	return crl, nil
}

func (c *CRLChecker) isCurrent(crl *x509.RevocationList) bool {
	return crl.NextUpdate.IsZero() || c.opts.Clock().Before(crl.NextUpdate)
}

func (c *CRLChecker) fetch(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source) //nolint:gosec // configured crl path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create crl request: %w", err)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crl request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crl server returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// parseCRL accepts DER or PEM ("X509 CRL") encoded lists.
func parseCRL(data []byte) (*x509.RevocationList, error) {
	if block, _ := pem.Decode(data); block != nil && block.Type == "X509 CRL" {
		data = block.Bytes
	}
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse crl: %w", err)
	}
	return crl, nil
}
