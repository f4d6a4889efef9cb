package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
)

// Open connects the configured backend and seeds the demo data when requested.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err = NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		st, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverMemory, "":
		st = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Seed {
		if err := Seed(ctx, st); err != nil {
			st.Close()
			return nil, err
		}
	}

	log.Info().Str("driver", cfg.Driver).Bool("seed", cfg.Seed).Msg("store ready")
	return st, nil
}
