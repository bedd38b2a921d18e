package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/loomworks/loom/pkg/cmd"
	"github.com/loomworks/loom/pkg/log"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/oauth"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/ratelimit"
	"github.com/loomworks/loom/pkg/signing"
	"github.com/loomworks/loom/pkg/vault"
	"github.com/loomworks/loom/pkg/web"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "loom-api",
		Usage:                 "Create, manage and execute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "master-secret",
				Usage:   "Master secret for credential encryption and state signing (min 32 chars)",
				Sources: cli.EnvVars("MASTER_SECRET"),
			},
			&cli.StringFlag{
				Name:    "callback-base-url",
				Usage:   "Externally reachable base URL of this API, used for OAuth callbacks",
				Sources: cli.EnvVars("CALLBACK_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "ui-url",
				Usage:   "UI URL the OAuth callback redirects to",
				Sources: cli.EnvVars("UI_URL"),
			},
			&cli.StringFlag{
				Name:    "github-client-id",
				Sources: cli.EnvVars("GITHUB_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "github-client-secret",
				Sources: cli.EnvVars("GITHUB_CLIENT_SECRET"),
			},
			&cli.StringFlag{
				Name:    "google-client-id",
				Sources: cli.EnvVars("GOOGLE_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "google-client-secret",
				Sources: cli.EnvVars("GOOGLE_CLIENT_SECRET"),
			},
			&cli.StringFlag{
				Name:    "slack-client-id",
				Sources: cli.EnvVars("SLACK_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "slack-client-secret",
				Sources: cli.EnvVars("SLACK_CLIENT_SECRET"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Loom API")

			registry := cmd.NewRegistry(logger)
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			oauthHandlers, err := buildOAuthHandlers(ctx, command, persistence, logger)
			if err != nil {
				return err
			}

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				oauthHandlers,
				ratelimit.New(),
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func buildOAuthHandlers(
	ctx context.Context,
	command *cli.Command,
	store persistence.Persistence,
	logger *slog.Logger,
) (*web.OAuthHandlers, error) {
	masterSecret := command.String("master-secret")
	if masterSecret == "" {
		logger.InfoContext(ctx, "No master secret configured, OAuth routes disabled")

		return nil, nil
	}

	providers := configuredProviders(command)
	if len(providers) == 0 {
		logger.InfoContext(ctx, "No OAuth providers configured, OAuth routes disabled")

		return nil, nil
	}

	credentialVault, err := vault.New(masterSecret)
	if err != nil {
		return nil, err
	}

	signer, err := signing.NewStateSigner(masterSecret)
	if err != nil {
		return nil, err
	}

	service := oauth.NewService(providers, credentialVault, store, logger)

	return web.NewOAuthHandlers(
		logger,
		service,
		signer,
		command.String("callback-base-url"),
		command.String("ui-url"),
	), nil
}

func configuredProviders(command *cli.Command) []oauth.Provider {
	var providers []oauth.Provider

	for _, candidate := range []struct {
		credentialType models.CredentialType
		idFlag         string
		secretFlag     string
	}{
		{models.CredentialTypeGitHub, "github-client-id", "github-client-secret"},
		{models.CredentialTypeGoogle, "google-client-id", "google-client-secret"},
		{models.CredentialTypeSlack, "slack-client-id", "slack-client-secret"},
	} {
		clientID := command.String(candidate.idFlag)
		clientSecret := command.String(candidate.secretFlag)

		if clientID != "" && clientSecret != "" {
			providers = append(providers, oauth.NewProvider(candidate.credentialType, clientID, clientSecret))
		}
	}

	return providers
}
