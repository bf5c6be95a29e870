package marketdata

import (
	"context"

	"go.uber.org/fx"

	"scan_bot/internal/modules/config"
	"scan_bot/internal/modules/marketdata/service"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			service.NewFeed,
			func(f *service.Feed) service.Provider { return f },
		),

		fx.Invoke(func(lc fx.Lifecycle, f *service.Feed, cfg *config.Config, ctx context.Context) {
			// общий watchlist = все инструменты всех аккаунтов
			seen := map[string]struct{}{}
			insts := make([]string, 0)
			for _, a := range cfg.Accounts {
				for _, id := range a.InstIDs {
					if _, ok := seen[id]; !ok {
						seen[id] = struct{}{}
						insts = append(insts, id)
					}
				}
			}

			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go f.Start(ctx, insts)
					return nil
				},
			})
		}),
	)
}
