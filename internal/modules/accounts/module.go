package accounts

import (
	"go.uber.org/fx"

	"scan_bot/internal/modules/accounts/service"
)

func Module() fx.Option {
	return fx.Module("accounts",
		fx.Provide(
			service.NewRegistry,
		),
	)
}
