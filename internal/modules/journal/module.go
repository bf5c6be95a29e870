package journal

import (
	"context"

	"go.uber.org/fx"

	"scan_bot/internal/modules/journal/service"
)

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			service.NewJournal,
		),
		fx.Invoke(func(lc fx.Lifecycle, j *service.Journal) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return j.EnsureSchema(ctx)
				},
			})
		}),
	)
}
