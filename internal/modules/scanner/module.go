package scanner

import (
	"context"

	"go.uber.org/fx"

	"scan_bot/internal/modules/scanner/service"
	"scan_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("scanner",
		fx.Provide(
			service.NewScanner,
		),

		fx.Invoke(func(lc fx.Lifecycle, s *service.Scanner, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						logger.Info("[SCAN] scheduler started")
						s.Run(ctx)
					}()
					return nil
				},
			})
		}),
	)
}
