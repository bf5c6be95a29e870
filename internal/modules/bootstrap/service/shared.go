package service

import (
	"sync"
	"sync/atomic"

	"scan_bot/internal/modules/config"
	gksvc "scan_bot/internal/modules/gatekeeper/service"
	storesvc "scan_bot/internal/modules/store/service"
	stratsvc "scan_bot/internal/modules/strategy/service"
	"scan_bot/pkg/logger"
)

// Deps — общие синглтоны цикла сканирования.
type Deps struct {
	Store      *storesvc.Store
	Gatekeeper *gksvc.Gatekeeper
	Strategies *stratsvc.Registry
}

// Shared строит Deps ровно один раз, сколько бы горутин ни пришло за
// ними одновременно: быстрый atomic-чек, под мьютексом — повторный.
// Второй вызов, попавший в момент строительства, ждёт, а не строит заново.
type Shared struct {
	cfg *config.Config

	mu     sync.Mutex
	ready  atomic.Bool
	deps   Deps
	builds atomic.Int32
}

func NewShared(cfg *config.Config) *Shared {
	return &Shared{cfg: cfg}
}

func (s *Shared) Get() Deps {
	if s.ready.Load() {
		return s.deps
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready.Load() {
		return s.deps
	}

	loc := s.cfg.ReferenceLocation()
	st := storesvc.NewStore(s.cfg.Scan.StoreCapacity, s.cfg.Scan.PendingTTL, loc)
	s.deps = Deps{
		Store:      st,
		Gatekeeper: gksvc.NewGatekeeper(st, loc),
		Strategies: stratsvc.NewRegistry(),
	}
	s.builds.Add(1)
	logger.Info("[BOOT] shared deps built (capacity=%d, tz=%s)", s.cfg.Scan.StoreCapacity, loc)

	// ready только после полностью собранных deps
	s.ready.Store(true)
	return s.deps
}
