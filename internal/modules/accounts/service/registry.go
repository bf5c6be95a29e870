package service

import (
	"fmt"
	"sync"
	"time"

	"scan_bot/internal/models"
	"scan_bot/internal/modules/config"
	"scan_bot/pkg/logger"
)

// Registry хранит аккаунты процесса. Загружается из конфига один раз,
// дальше меняется только reload-ом и halt-апдейтами. Аккаунты наружу
// отдаём копиями, чтобы никто не мутировал Halt мимо Registry.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	order    []string // порядок из конфига, для стабильного обхода
}

func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{accounts: make(map[string]*models.Account)}
	r.Swap(cfg.Accounts)
	return r
}

// Swap заменяет набор аккаунтов (стартовая загрузка и reload).
// Halt-состояние живых аккаунтов переживает reload.
func (r *Registry) Swap(fresh []models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*models.Account, len(fresh))
	order := make([]string, 0, len(fresh))
	for i := range fresh {
		a := fresh[i]
		if a.Halt.RiskMultiplier == 0 {
			a.Halt.RiskMultiplier = 1.0
		}
		if prev, ok := r.accounts[a.ID]; ok {
			a.Halt = prev.Halt
		}
		next[a.ID] = &a
		order = append(order, a.ID)
	}
	r.accounts = next
	r.order = order
}

// Active — копии активных аккаунтов в порядке конфига.
func (r *Registry) Active() []models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Account, 0, len(r.order))
	for _, id := range r.order {
		if a := r.accounts[id]; a != nil && a.Active {
			out = append(out, *a)
		}
	}
	return out
}

// All — копии всех аккаунтов (для дашборда).
func (r *Registry) All() []models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Account, 0, len(r.order))
	for _, id := range r.order {
		if a := r.accounts[id]; a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func (r *Registry) Get(id string) (models.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return models.Account{}, false
	}
	return *a, true
}

// Deactivate — аккаунты не удаляются в рантайме, только выключаются.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("unknown account %q", id)
	}
	a.Active = false
	return nil
}

func (r *Registry) SetNewsHalt(id string, until time.Time, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		a.Halt.NewsHaltUntil = &until
		a.Halt.SetAt = now
	}
}

func (r *Registry) SetThrottle(id string, until time.Time, multiplier float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		a.Halt.ThrottleUntil = &until
		a.Halt.RiskMultiplier = multiplier
		a.Halt.SetAt = now
	}
}

// SweepHalts снимает протухшие halt-ы; внутри recovery-окна дополнительно
// force-сносит halt старше grace (выходной/остановка рынка могли пережить
// номинальный срок) и возвращает множитель риска к 1.0.
func (r *Registry) SweepHalts(now time.Time, inWindow bool, grace time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cleared := 0
	for _, a := range r.accounts {
		force := inWindow && !a.Halt.SetAt.IsZero() && now.Sub(a.Halt.SetAt) > grace

		if a.Halt.NewsHaltUntil != nil && (!now.Before(*a.Halt.NewsHaltUntil) || force) {
			logger.Info("[RECOVERY] account=%s news-halt cleared (force=%v)", a.ID, force)
			a.Halt.NewsHaltUntil = nil
			cleared++
		}
		if a.Halt.ThrottleUntil != nil && (!now.Before(*a.Halt.ThrottleUntil) || force) {
			logger.Info("[RECOVERY] account=%s throttle cleared (force=%v)", a.ID, force)
			a.Halt.ThrottleUntil = nil
			cleared++
		}
		if force && a.Halt.RiskMultiplier != 1.0 {
			a.Halt.RiskMultiplier = 1.0
		}
	}
	return cleared
}
