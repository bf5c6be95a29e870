package service

import (
	"time"

	accsvc "scan_bot/internal/modules/accounts/service"
	"scan_bot/internal/modules/config"
)

// Sweeper снимает протухшие halt-ы сам, без человека. Halt, выставленный
// перед выходными, иначе молча душил бы торговлю после открытия рынка.
type Sweeper struct {
	registry *accsvc.Registry
	loc      *time.Location

	fromHour int // recovery-окно, [from, to) в reference TZ
	toHour   int
	grace    time.Duration
}

func NewSweeper(cfg *config.Config, registry *accsvc.Registry) *Sweeper {
	return &Sweeper{
		registry: registry,
		loc:      cfg.ReferenceLocation(),
		fromHour: cfg.Recovery.WindowFromHour,
		toHour:   cfg.Recovery.WindowToHour,
		grace:    cfg.Recovery.Grace,
	}
}

// Sweep гоняется на старте процесса и в начале каждого цикла.
func (s *Sweeper) Sweep(now time.Time) int {
	return s.registry.SweepHalts(now, s.inWindow(now), s.grace)
}

func (s *Sweeper) inWindow(now time.Time) bool {
	h := now.In(s.loc).Hour()
	if s.fromHour <= s.toHour {
		return h >= s.fromHour && h < s.toHour
	}
	return h >= s.fromHour || h < s.toHour
}
