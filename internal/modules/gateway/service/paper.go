package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	storesvc "scan_bot/internal/modules/store/service"
	"scan_bot/pkg/logger"
)

// Paper — бумажный гейтвей: ордера не уходят никуда, fill приходит
// событием после FillDelay по цене входа. Используется по умолчанию
// и в тестах; боевой брокер подключается той же Gateway-реализацией.
type Paper struct {
	FillDelay time.Duration

	mu     sync.Mutex
	orders map[string]string // orderRef -> signalID
	events chan ExecutionEvent
}

func NewPaper(fillDelay time.Duration) *Paper {
	if fillDelay <= 0 {
		fillDelay = 50 * time.Millisecond
	}
	return &Paper{
		FillDelay: fillDelay,
		orders:    make(map[string]string),
		events:    make(chan ExecutionEvent, 256),
	}
}

func (p *Paper) Events() <-chan ExecutionEvent { return p.events }

func (p *Paper) PlaceOrder(ctx context.Context, sig storesvc.TrackedSignal) (string, error) {
	ref := "paper-" + uuid.NewString()[:8]

	p.mu.Lock()
	p.orders[ref] = sig.ID
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.FillDelay):
		}
		p.emit(ExecutionEvent{
			Type:     EventFill,
			SignalID: sig.ID,
			OrderRef: ref,
			Price:    sig.Entry,
		})
	}()

	logger.Info("[PAPER] order %s placed for signal %s (%s %s @ %.5f)", ref, sig.ID, sig.InstID, sig.Side, sig.Entry)
	return ref, nil
}

func (p *Paper) ClosePartial(ctx context.Context, orderRef string, fraction float64) error {
	p.mu.Lock()
	_, ok := p.orders[orderRef]
	p.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown order %s", orderRef)
	}
	logger.Info("[PAPER] partial close %s fraction=%.2f", orderRef, fraction)
	return nil
}

func (p *Paper) CloseAll(ctx context.Context, orderRef string, reason storesvc.CloseReason, price float64) error {
	p.mu.Lock()
	sigID, ok := p.orders[orderRef]
	p.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown order %s", orderRef)
	}
	p.emit(ExecutionEvent{
		Type:     EventClose,
		SignalID: sigID,
		OrderRef: orderRef,
		Price:    price,
		Reason:   reason,
	})
	return nil
}

func (p *Paper) emit(ev ExecutionEvent) {
	select {
	case p.events <- ev:
	default:
		// консьюмер встал — событие теряем, но не блокируем брокерскую часть
		logger.Error("[PAPER] event channel full, dropped %s for signal %s", ev.Type, ev.SignalID)
	}
}
