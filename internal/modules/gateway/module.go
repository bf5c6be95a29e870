package gateway

import (
	"context"
	"time"

	"go.uber.org/fx"

	"scan_bot/internal/modules/gateway/service"
	journalsvc "scan_bot/internal/modules/journal/service"
	storesvc "scan_bot/internal/modules/store/service"
	"scan_bot/internal/notify"
	"scan_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			func() *service.Paper { return service.NewPaper(0) },
			func(p *service.Paper) service.Gateway { return p },
		),

		// Подтверждения — message passing: единственный консьюмер канала
		// событий двигает машину состояний Store, синхронизация минимальна.
		fx.Invoke(func(
			lc fx.Lifecycle,
			gw service.Gateway,
			st *storesvc.Store,
			n notify.Notifier,
			j *journalsvc.Journal,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						logger.Info("[GATEWAY] confirmation loop started")
						for {
							select {
							case <-ctx.Done():
								return
							case ev, ok := <-gw.Events():
								if !ok {
									return
								}
								onEvent(ctx, ev, st, n, j)
							}
						}
					}()
					return nil
				},
			})
		}),
	)
}

func onEvent(ctx context.Context, ev service.ExecutionEvent, st *storesvc.Store, n notify.Notifier, j *journalsvc.Journal) {
	now := time.Now()

	switch ev.Type {
	case service.EventFill:
		if st.OnFillConfirmed(ev.SignalID, ev.OrderRef, ev.Price, now) {
			if sig, ok := st.Get(ev.SignalID); ok {
				n.Sendf("▶️ [%s] %s %s filled @ %.5f (account=%s)",
					sig.InstID, sig.Strategy, sig.Side, ev.Price, sig.AccountID)
			}
		}

	case service.EventClose:
		if st.OnClosed(ev.SignalID, ev.Reason, ev.Price, now) {
			if sig, ok := st.Get(ev.SignalID); ok {
				n.Sendf("⏹ [%s] %s closed: %s @ %.5f, realized=%.1f pips (account=%s)",
					sig.InstID, sig.Side, sig.Status, ev.Price, sig.Realized, sig.AccountID)
				j.RecordClosed(ctx, sig)
			}
		}

	default:
		logger.Error("[GATEWAY] unknown event type %q for signal %s", ev.Type, ev.SignalID)
	}
}
