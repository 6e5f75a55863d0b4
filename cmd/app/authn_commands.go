package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/cas/cmd/app/commands"
	"github.com/allisson/cas/internal/app"
	authnUseCase "github.com/allisson/cas/internal/authn/usecase"
	"github.com/allisson/cas/internal/config"
)

func getAuthnCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-realm-user",
			Usage: "Create a user for the database login module",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "realm",
					Aliases: []string{"r"},
					Usage:   "Realm name (defaults to REALM_DEFAULT)",
				},
				&cli.StringFlag{
					Name:     "username",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "Username",
				},
				&cli.StringFlag{
					Name:    "password",
					Aliases: []string{"p"},
					Usage:   "Password (omit to read it from stdin)",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				realmUserUseCase, err := container.RealmUserUseCase()
				if err != nil {
					return err
				}

				realm := cmd.String("realm")
				if realm == "" {
					realm = cfg.RealmDefault
				}

				return commands.RunCreateRealmUser(
					ctx,
					realmUserUseCase,
					container.Logger(),
					realm,
					cmd.String("username"),
					cmd.String("password"),
					cmd.String("format"),
					commands.DefaultIO(),
				)
			},
		},
		{
			Name:  "verify-certificate",
			Usage: "Validate a PEM certificate chain with the configured X.509 handler",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "chain",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "PEM file holding the chain, end-entity certificate first",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				x509Handler, err := container.X509Handler()
				if err != nil {
					return err
				}

				return commands.RunVerifyCertificate(
					ctx,
					x509Handler,
					authnUseCase.NewPrincipalResolver(cfg.X509PrincipalAttribute),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("chain"),
					cmd.String("format"),
				)
			},
		},
	}
}
