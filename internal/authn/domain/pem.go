package domain

import (
	"crypto/x509"
	"encoding/pem"

	"github.com/allisson/cas/internal/errors"
)

// ParseCertificateChain decodes every CERTIFICATE block in data, keeping the order in which
// they appear. Blocks of other types are skipped.
func ParseCertificateChain(data []byte) ([]*x509.Certificate, error) {
	var certificates []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "invalid certificate: "+err.Error())
		}
		certificates = append(certificates, cert)
	}

	if len(certificates) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no PEM certificate found")
	}
	return certificates, nil
}
