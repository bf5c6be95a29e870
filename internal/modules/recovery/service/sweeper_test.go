package service

import (
	"os"
	"testing"
	"time"

	"scan_bot/internal/models"
	accsvc "scan_bot/internal/modules/accounts/service"
	"scan_bot/internal/modules/config"
	"scan_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestSweeper(t *testing.T, registry *accsvc.Registry) *Sweeper {
	t.Helper()
	cfg := &config.Config{}
	cfg.Scan.ReferenceTZ = "UTC"
	cfg.Recovery.WindowFromHour = 0
	cfg.Recovery.WindowToHour = 12
	cfg.Recovery.Grace = 2 * time.Hour
	return NewSweeper(cfg, registry)
}

func TestSweepForceClearsStuckHalt(t *testing.T) {
	r := &accsvc.Registry{}
	r.Swap([]models.Account{{ID: "alpha", Active: true}})

	// halt выставлен в пятницу на 10 часов вперёд, выходные его пережили
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // понедельник, внутри окна 0-12
	r.SetNewsHalt("alpha", now.Add(10*time.Hour), now.Add(-3*time.Hour))
	r.SetThrottle("alpha", now.Add(10*time.Hour), 0.5, now.Add(-3*time.Hour))

	s := newTestSweeper(t, r)
	if cleared := s.Sweep(now); cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", cleared)
	}

	a, _ := r.Get("alpha")
	if a.Halt.NewsHaltUntil != nil || a.Halt.ThrottleUntil != nil {
		t.Fatal("stuck halts must be force-cleared inside recovery window")
	}
	if a.Halt.RiskMultiplier != 1.0 {
		t.Fatalf("multiplier must be restored, got %.2f", a.Halt.RiskMultiplier)
	}
}

func TestSweepRespectsLiveHaltOutsideWindow(t *testing.T) {
	r := &accsvc.Registry{}
	r.Swap([]models.Account{{ID: "alpha", Active: true}})

	// вне окна 0-12: живой halt не трогаем, даже старый
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	r.SetNewsHalt("alpha", now.Add(10*time.Hour), now.Add(-3*time.Hour))

	s := newTestSweeper(t, r)
	if cleared := s.Sweep(now); cleared != 0 {
		t.Fatalf("expected nothing cleared outside window, got %d", cleared)
	}
	a, _ := r.Get("alpha")
	if a.Halt.NewsHaltUntil == nil {
		t.Fatal("live halt outside window must survive")
	}
}

func TestSweepClearsExpiredAnywhere(t *testing.T) {
	r := &accsvc.Registry{}
	r.Swap([]models.Account{{ID: "alpha", Active: true}})

	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) // вне окна
	r.SetNewsHalt("alpha", now.Add(-time.Minute), now.Add(-time.Hour))

	s := newTestSweeper(t, r)
	if cleared := s.Sweep(now); cleared != 1 {
		t.Fatalf("expired halt must clear regardless of window, got %d", cleared)
	}
}
