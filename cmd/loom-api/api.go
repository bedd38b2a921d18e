// Package main provides the Loom API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/ratelimit"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/web"
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	registry      *registry.Registry
	eventBus      eventbus.EventBus
	oauthHandlers *web.OAuthHandlers
	limiter       *ratelimit.Limiter
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	oauthHandlers *web.OAuthHandlers,
	limiter *ratelimit.Limiter,
) *API {
	return &API{
		logger:        logger,
		persistence:   store,
		registry:      reg,
		eventBus:      eventBus,
		oauthHandlers: oauthHandlers,
		limiter:       limiter,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.logger, a.persistence, a.registry, a.eventBus)

	return web.NewApp(handlers, a.oauthHandlers, a.limiter)
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
