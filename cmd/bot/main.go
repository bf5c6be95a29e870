package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"scan_bot/internal/modules/accounts"
	"scan_bot/internal/modules/api"
	"scan_bot/internal/modules/bootstrap"
	"scan_bot/internal/modules/config"
	"scan_bot/internal/modules/gateway"
	"scan_bot/internal/modules/journal"
	"scan_bot/internal/modules/marketdata"
	"scan_bot/internal/modules/postgres"
	"scan_bot/internal/modules/recovery"
	"scan_bot/internal/modules/scanner"
	"scan_bot/internal/notify"
	"scan_bot/pkg/logger"
	"scan_bot/pkg/tracing"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName("scan_bot")
	tracing.SetServiceName("scan_bot")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			// Notifier: если TELEGRAM_* нет — используем stdout
			func(cfg *config.Config) notify.Notifier {
				if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
					if tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID); err == nil {
						return tg
					}
				}
				return notify.NewStdout()
			},
		),
		config.Module(),
		postgres.Module(),
		journal.Module(),
		accounts.Module(),
		bootstrap.Module(),
		marketdata.Module(),
		gateway.Module(),
		recovery.Module(),
		scanner.Module(),
		api.Module(),

		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			if cfg.Jaeger.Host == "" {
				return
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				logger.Error("init tracer: %v", err)
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
		}),
	)
	app.Run()
}
