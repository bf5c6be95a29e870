package recovery

import (
	"go.uber.org/fx"

	"scan_bot/internal/modules/recovery/service"
)

func Module() fx.Option {
	return fx.Module("recovery",
		fx.Provide(
			service.NewSweeper,
		),
	)
}
