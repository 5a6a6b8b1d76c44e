// Package cmd provides shared construction helpers for the service binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/staffly/approvalflow/pkg/persistence"
	"github.com/staffly/approvalflow/pkg/persistence/file"
	"github.com/staffly/approvalflow/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme. Unknown schemes fall back to file storage.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
