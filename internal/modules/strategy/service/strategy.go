package service

import "scan_bot/internal/models"

// Strategy — единственная способность: по текущим котировкам опционально
// предложить сделки. Пустой список — нормальный исход, не ошибка.
// Evaluate не имеет права писать в общий стейт движка; вся внутренняя
// индикаторная память приватна для инстанса.
type Strategy interface {
	Evaluate(snapshot map[string]models.Quote) []models.CandidateSignal
	Name() models.StrategyType
}
