package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
	authnUseCase "github.com/allisson/cas/internal/authn/usecase"
)

// RunCreateRealmUser creates a user for the database login module. When password is empty
// it is read from the first line of ioTuple.Reader.
//
// Requirements: Database must be migrated and accessible.
func RunCreateRealmUser(
	ctx context.Context,
	realmUserUseCase authnUseCase.RealmUserUseCase,
	logger *slog.Logger,
	realm string,
	username string,
	password string,
	format string,
	ioTuple IOTuple,
) error {
	logger.Info("creating realm user",
		slog.String("realm", realm),
		slog.String("username", username),
	)

	if password == "" {
		var err error
		password, err = promptForPassword(ioTuple)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	user, err := realmUserUseCase.Create(ctx, realm, username, password)
	if err != nil {
		return fmt.Errorf("failed to create realm user: %w", err)
	}

	if format == "json" {
		if err := writeJSON(ioTuple.Writer, map[string]any{
			"id":         user.ID.String(),
			"realm":      user.Realm,
			"username":   user.Username,
			"is_active":  user.IsActive,
			"created_at": user.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	} else {
		outputRealmUserText(ioTuple.Writer, user)
	}

	logger.Info("realm user created successfully",
		slog.String("id", user.ID.String()),
		slog.String("realm", user.Realm),
		slog.String("username", user.Username),
	)

	return nil
}

func promptForPassword(ioTuple IOTuple) (string, error) {
	_, _ = fmt.Fprint(ioTuple.Writer, "Enter password: ")

	reader := bufio.NewReader(ioTuple.Reader)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	_, _ = fmt.Fprintln(ioTuple.Writer)

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

func outputRealmUserText(writer io.Writer, user *domain.RealmUser) {
	_, _ = fmt.Fprintln(writer, "Realm user created successfully!")
	_, _ = fmt.Fprintf(writer, "ID:       %s\n", user.ID)
	_, _ = fmt.Fprintf(writer, "Realm:    %s\n", user.Realm)
	_, _ = fmt.Fprintf(writer, "Username: %s\n", user.Username)
	_, _ = fmt.Fprintf(writer, "Active:   %t\n", user.IsActive)
}
