package service

import (
	"fmt"
	"sync"

	"scan_bot/internal/models"
)

// Builder создаёт свежий инстанс стратегии (своя индикаторная память).
type Builder func() Strategy

// Registry — реестр стратегий по имени. Инстанс резолвится на аккаунт
// при загрузке и кешируется: у каждого аккаунта своя память.
type Registry struct {
	mu        sync.Mutex
	builders  map[models.StrategyType]Builder
	instances map[string]Strategy // accountID -> инстанс
}

func NewRegistry() *Registry {
	r := &Registry{
		builders:  make(map[models.StrategyType]Builder),
		instances: make(map[string]Strategy),
	}
	r.Register(models.StrategyEMARSI, func() Strategy { return NewEMARSI(EMARSIConfig{}) })
	r.Register(models.StrategyDonchian, func() Strategy { return NewDonchian(DonchianConfig{}) })
	return r
}

func (r *Registry) Register(name models.StrategyType, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

// ForAccount резолвит стратегию аккаунта по имени.
func (r *Registry) ForAccount(accountID string, name models.StrategyType) (Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name = models.StrategyEMARSI
	}

	if s, ok := r.instances[accountID]; ok && s.Name() == name {
		return s, nil
	}

	b, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	s := b()
	r.instances[accountID] = s
	return s, nil
}
