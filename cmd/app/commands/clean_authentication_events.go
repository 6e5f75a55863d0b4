package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	authnUseCase "github.com/allisson/cas/internal/authn/usecase"
)

// RunCleanAuthenticationEvents deletes authentication events older than the specified number
// of days. Supports dry-run mode to preview deletion count and both text/JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCleanAuthenticationEvents(
	ctx context.Context,
	eventUseCase authnUseCase.AuthenticationEventUseCase,
	logger *slog.Logger,
	writer io.Writer,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}

	logger.Info("cleaning authentication events",
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	count, err := eventUseCase.DeleteOlderThan(ctx, days, dryRun)
	if err != nil {
		return fmt.Errorf("failed to delete authentication events: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"count":   count,
			"days":    days,
			"dry_run": dryRun,
		}); err != nil {
			return err
		}
	} else {
		outputCleanText(writer, count, days, dryRun)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}

func outputCleanText(writer io.Writer, count int64, days int, dryRun bool) {
	if dryRun {
		_, _ = fmt.Fprintf(writer,
			"Dry-run mode: Would delete %d authentication event(s) older than %d day(s)\n", count, days)
		return
	}
	_, _ = fmt.Fprintf(writer, "Successfully deleted %d authentication event(s) older than %d day(s)\n", count, days)
}
