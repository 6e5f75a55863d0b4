package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var oidExtensionKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}

// KeyPair is a generated certificate and its private key.
type KeyPair struct {
	Certificate *x509.Certificate
	Key         *ecdsa.PrivateKey
}

// CertificateOptions describes a test certificate. Zero values produce a leaf valid for an
// hour with no key usage extension.
type CertificateOptions struct {
	Subject pkix.Name
	IsCA    bool
	// MaxPathLen applies to CAs only; -1 leaves the path length unconstrained.
	MaxPathLen     int
	MaxPathLenZero bool
	NotBefore      time.Time
	NotAfter       time.Time
	// KeyUsage of zero omits the extension.
	KeyUsage x509.KeyUsage
	// NonCriticalKeyUsage encodes the key usage extension without the critical flag.
	NonCriticalKeyUsage   bool
	SerialNumber          *big.Int
	CRLDistributionPoints []string
	OCSPServer            []string
}

// GenerateCertificate creates a certificate signed by parent, or self-signed when parent is nil.
func GenerateCertificate(t testing.TB, opts CertificateOptions, parent *KeyPair) *KeyPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial := opts.SerialNumber
	if serial == nil {
		serial, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
		require.NoError(t, err)
	}

	notBefore := opts.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Minute)
	}
	notAfter := opts.NotAfter
	if notAfter.IsZero() {
		notAfter = notBefore.Add(time.Hour)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               opts.Subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
		CRLDistributionPoints: opts.CRLDistributionPoints,
		OCSPServer:            opts.OCSPServer,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if opts.IsCA {
		template.MaxPathLen = opts.MaxPathLen
		template.MaxPathLenZero = opts.MaxPathLenZero
	}

	if opts.KeyUsage != 0 {
		if opts.NonCriticalKeyUsage {
			value, err := marshalKeyUsage(opts.KeyUsage)
			require.NoError(t, err)
			template.ExtraExtensions = []pkix.Extension{
				{Id: oidExtensionKeyUsage, Critical: false, Value: value},
			}
		} else {
			template.KeyUsage = opts.KeyUsage
		}
	}

	signer, signerKey := template, key
	if parent != nil {
		signer, signerKey = parent.Certificate, parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signer, &key.PublicKey, signerKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &KeyPair{Certificate: cert, Key: key}
}

// GenerateCA creates a CA certificate with CRL signing rights and the given path length.
func GenerateCA(t testing.TB, commonName string, maxPathLen int, parent *KeyPair) *KeyPair {
	t.Helper()

	return GenerateCertificate(t, CertificateOptions{
		Subject:        pkix.Name{CommonName: commonName, Organization: []string{"CAS Test"}},
		IsCA:           true,
		MaxPathLen:     maxPathLen,
		MaxPathLenZero: maxPathLen == 0,
		KeyUsage:       x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}, parent)
}

// GenerateLeaf creates an end-entity certificate with digitalSignature key usage.
func GenerateLeaf(t testing.TB, commonName string, parent *KeyPair) *KeyPair {
	t.Helper()

	return GenerateCertificate(t, CertificateOptions{
		Subject:  pkix.Name{CommonName: commonName, Organization: []string{"CAS Test"}},
		KeyUsage: x509.KeyUsageDigitalSignature,
	}, parent)
}

// GenerateCRL creates a DER encoded CRL issued by issuer revoking the given serials.
func GenerateCRL(t testing.TB, issuer *KeyPair, nextUpdate time.Time, revoked ...*big.Int) []byte {
	t.Helper()

	entries := make([]x509.RevocationListEntry, 0, len(revoked))
	for _, serial := range revoked {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   serial,
			RevocationTime: time.Now().Add(-time.Minute),
		})
	}

	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(time.Now().UnixNano()),
		ThisUpdate:                time.Now().Add(-time.Hour),
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: entries,
	}, issuer.Certificate, issuer.Key)
	require.NoError(t, err)

	return der
}

// EncodePEM encodes certificates as a concatenated PEM chain.
func EncodePEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}

// marshalKeyUsage encodes usage as the DER BIT STRING carried by the key usage extension.
func marshalKeyUsage(usage x509.KeyUsage) ([]byte, error) {
	var bits [2]byte
	bitLength := 0
	for i := 0; i < 16; i++ {
		if usage&(1<<i) != 0 {
			bits[i/8] |= 0x80 >> (i % 8)
			bitLength = i + 1
		}
	}
	return asn1.Marshal(asn1.BitString{Bytes: bits[:(bitLength+7)/8], BitLength: bitLength})
}
