package commands

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/authn/handler"
	authnUseCase "github.com/allisson/cas/internal/authn/usecase"
)

// RunVerifyCertificate runs the configured X.509 handler against a PEM chain read from
// chainFile, without contacting the login API. It applies the handler's checks, including
// revocation, but not the signature verification against the client CAs that the login
// API performs before the handler runs.
func RunVerifyCertificate(
	ctx context.Context,
	x509Handler handler.AuthenticationHandler,
	resolver *authnUseCase.PrincipalResolver,
	logger *slog.Logger,
	writer io.Writer,
	chainFile string,
	format string,
) error {
	data, err := os.ReadFile(chainFile) //nolint:gosec // operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read certificate chain: %w", err)
	}

	certificates, err := domain.ParseCertificateChain(data)
	if err != nil {
		return fmt.Errorf("failed to parse certificate chain: %w", err)
	}

	logger.Info("verifying certificate chain",
		slog.String("file", chainFile),
		slog.Int("certificates", len(certificates)),
	)

	credential := domain.NewX509CertificateCredentials(certificates)
	authErr := x509Handler.Authenticate(ctx, credential)

	var principal string
	if authErr == nil {
		if p := resolver.Resolve(credential); p != nil {
			principal = p.ID
		}
	}

	if format == "json" {
		if err := outputVerifyCertificateJSON(writer, certificates, principal, authErr); err != nil {
			return err
		}
	} else {
		outputVerifyCertificateText(writer, certificates, principal, authErr)
	}

	if authErr != nil {
		logger.Warn("certificate chain rejected", slog.Any("error", authErr))
		return fmt.Errorf("certificate chain rejected: %w", authErr)
	}

	logger.Info("certificate chain accepted", slog.String("principal", principal))
	return nil
}

func outputVerifyCertificateText(
	writer io.Writer,
	certificates []*x509.Certificate,
	principal string,
	authErr error,
) {
	_, _ = fmt.Fprintf(writer, "Certificate Chain Verification\n")
	_, _ = fmt.Fprintf(writer, "==============================\n\n")

	for i, cert := range certificates {
		_, _ = fmt.Fprintf(writer, "[%d] Subject: %s\n", i, cert.Subject)
		_, _ = fmt.Fprintf(writer, "    Issuer:  %s\n", cert.Issuer)
		_, _ = fmt.Fprintf(writer, "    Serial:  %s\n", cert.SerialNumber)
	}
	_, _ = fmt.Fprintln(writer)

	if authErr != nil {
		_, _ = fmt.Fprintf(writer, "Status: FAILED (%v)\n", authErr)
		return
	}
	_, _ = fmt.Fprintf(writer, "Principal: %s\n", principal)
	_, _ = fmt.Fprintf(writer, "Status: PASSED\n")
}

func outputVerifyCertificateJSON(
	writer io.Writer,
	certificates []*x509.Certificate,
	principal string,
	authErr error,
) error {
	chain := make([]map[string]string, 0, len(certificates))
	for _, cert := range certificates {
		chain = append(chain, map[string]string{
			"subject": cert.Subject.String(),
			"issuer":  cert.Issuer.String(),
			"serial":  cert.SerialNumber.String(),
		})
	}

	result := map[string]any{
		"chain":  chain,
		"passed": authErr == nil,
	}
	if authErr != nil {
		result["error"] = authErr.Error()
	} else {
		result["principal"] = principal
	}

	return writeJSON(writer, result)
}
