package service

import (
	"context"

	"scan_bot/internal/models"
)

// Provider — источник котировок для цикла сканирования. Обязан честно
// помечать устаревшие данные: Stale=true вместо тихой выдачи last-known-good.
type Provider interface {
	GetQuotes(ctx context.Context, instIDs []string) (map[string]models.Quote, error)
}
