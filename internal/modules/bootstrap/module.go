package bootstrap

import (
	"go.uber.org/fx"

	"scan_bot/internal/modules/bootstrap/service"
	gksvc "scan_bot/internal/modules/gatekeeper/service"
	storesvc "scan_bot/internal/modules/store/service"
	stratsvc "scan_bot/internal/modules/strategy/service"
)

// Module отдаёт общий контейнер и распакованные из него синглтоны,
// чтобы остальные модули зависели от конкретных типов напрямую.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			service.NewShared,
			func(sh *service.Shared) *storesvc.Store { return sh.Get().Store },
			func(sh *service.Shared) *gksvc.Gatekeeper { return sh.Get().Gatekeeper },
			func(sh *service.Shared) *stratsvc.Registry { return sh.Get().Strategies },
		),
	)
}
