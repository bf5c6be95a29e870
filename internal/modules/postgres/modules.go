package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"scan_bot/internal/modules/config"
	"scan_bot/pkg/db"
	"scan_bot/pkg/logger"
)

// Module отдаёт *db.PgTxManager. Пустой DSN — журнал выключен,
// менеджер nil, консьюмеры обязаны это переживать.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					logger.Info("[PG] no DSN, journal disabled")
					return nil, nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
	)
}
