package service

import (
	"context"

	storesvc "scan_bot/internal/modules/store/service"
)

type EventType string

const (
	EventFill  EventType = "fill"
	EventClose EventType = "close"
)

// ExecutionEvent — подтверждение от брокера. Движок никогда не считает
// исполнение синхронным: fill/close приходят событиями через канал.
type ExecutionEvent struct {
	Type     EventType
	SignalID string
	OrderRef string
	Price    float64
	Reason   storesvc.CloseReason // только для close
}

// Gateway — граница с брокером. Реализация обязана быстро возвращаться:
// подтверждения идут через Events. price в CloseAll — цена, по которой
// движок увидел пересечение; брокер вправе уточнить её в подтверждении.
type Gateway interface {
	PlaceOrder(ctx context.Context, sig storesvc.TrackedSignal) (orderRef string, err error)
	ClosePartial(ctx context.Context, orderRef string, fraction float64) error
	CloseAll(ctx context.Context, orderRef string, reason storesvc.CloseReason, price float64) error
	Events() <-chan ExecutionEvent
}
