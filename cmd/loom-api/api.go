// Package main provides the Loom API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/loomhq/loom/pkg/credentials"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/registry"
	"github.com/loomhq/loom/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	credentials *credentials.Store
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	credentialStore *credentials.Store,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		persistence: persistence,
		credentials: credentialStore,
		logger:      logger,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) Start(port int) error {
	handlers := web.NewAPIHandlers(
		a.persistence,
		a.credentials,
		a.registry,
		a.eventBus,
		a.validate,
		a.logger,
	)

	app := web.NewApp(handlers)

	return app.Listen(":" + strconv.Itoa(port))
}
