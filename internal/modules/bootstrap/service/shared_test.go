package service

import (
	"os"
	"sync"
	"testing"
	"time"

	"scan_bot/internal/modules/config"
	"scan_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scan.StoreCapacity = 10
	cfg.Scan.PendingTTL = time.Hour
	cfg.Scan.ReferenceTZ = "UTC"
	return cfg
}

func TestGetBuildsExactlyOnce(t *testing.T) {
	s := NewShared(testConfig())

	const goroutines = 32
	results := make([]Deps, goroutines)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait() // все стартуют одновременно
			results[i] = s.Get()
		}(i)
	}
	start.Done()
	done.Wait()

	if n := s.builds.Load(); n != 1 {
		t.Fatalf("deps built %d times, want 1", n)
	}
	for i, d := range results {
		if d.Store == nil || d.Gatekeeper == nil || d.Strategies == nil {
			t.Fatalf("goroutine %d got incomplete deps", i)
		}
		if d.Store != results[0].Store {
			t.Fatalf("goroutine %d got a different store instance", i)
		}
	}
}

func TestGetReturnsSameDepsSequentially(t *testing.T) {
	s := NewShared(testConfig())

	first := s.Get()
	second := s.Get()
	if first.Store != second.Store || first.Gatekeeper != second.Gatekeeper {
		t.Fatal("sequential Get must return identical singletons")
	}
	if s.builds.Load() != 1 {
		t.Fatalf("expected a single build, got %d", s.builds.Load())
	}
}
