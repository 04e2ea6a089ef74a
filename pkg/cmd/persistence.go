package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/persistence/file"
	"github.com/loomhq/loom/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgresql", "postgres"}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgresql", "postgres":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return store
	default:
		store, err := file.NewPersistence(databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create file persistence: %w", err))
		}

		return store
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
