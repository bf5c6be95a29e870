package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scan_bot/internal/models"
	accsvc "scan_bot/internal/modules/accounts/service"
	bootsvc "scan_bot/internal/modules/bootstrap/service"
	"scan_bot/internal/modules/config"
	gwsvc "scan_bot/internal/modules/gateway/service"
	journalsvc "scan_bot/internal/modules/journal/service"
	recsvc "scan_bot/internal/modules/recovery/service"
	storesvc "scan_bot/internal/modules/store/service"
	stratsvc "scan_bot/internal/modules/strategy/service"
	"scan_bot/internal/notify"
	"scan_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// --- фейки ---

type fakeProvider struct {
	mu     sync.Mutex
	quotes map[string]models.Quote

	blockNext atomic.Bool
	entered   chan struct{}
	release   chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		quotes:  make(map[string]models.Quote),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeProvider) set(instID string, bid, ask float64, now time.Time) {
	f.mu.Lock()
	f.quotes[instID] = models.Quote{InstID: instID, Bid: bid, Ask: ask, Ts: now}
	f.mu.Unlock()
}

func (f *fakeProvider) GetQuotes(_ context.Context, instIDs []string) (map[string]models.Quote, error) {
	if f.blockNext.CompareAndSwap(true, false) {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.Quote, len(instIDs))
	for _, id := range instIDs {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

type closeCall struct {
	reason storesvc.CloseReason
	price  float64
}

type fakeGateway struct {
	mu       sync.Mutex
	placed   []storesvc.TrackedSignal
	partials []float64
	closes   []closeCall
	placeErr error
	events   chan gwsvc.ExecutionEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(chan gwsvc.ExecutionEvent, 16)}
}

func (f *fakeGateway) PlaceOrder(_ context.Context, sig storesvc.TrackedSignal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, sig)
	return "ord-" + sig.ID, nil
}

func (f *fakeGateway) ClosePartial(_ context.Context, _ string, fraction float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, fraction)
	return nil
}

func (f *fakeGateway) CloseAll(_ context.Context, _ string, reason storesvc.CloseReason, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, closeCall{reason: reason, price: price})
	return nil
}

func (f *fakeGateway) Events() <-chan gwsvc.ExecutionEvent { return f.events }

type scripted struct {
	name models.StrategyType
	out  []models.CandidateSignal
}

func (s *scripted) Evaluate(map[string]models.Quote) []models.CandidateSignal { return s.out }
func (s *scripted) Name() models.StrategyType                                { return s.name }

type panicky struct{}

func (p *panicky) Evaluate(map[string]models.Quote) []models.CandidateSignal {
	panic("bad indicator state")
}
func (p *panicky) Name() models.StrategyType { return "panicky" }

// --- сборка ---

type fixture struct {
	scanner  *Scanner
	shared   *bootsvc.Shared
	registry *accsvc.Registry
	md       *fakeProvider
	gw       *fakeGateway
}

func scannerAccount(id string, strategy models.StrategyType) models.Account {
	return models.Account{
		ID:       id,
		Strategy: strategy,
		InstIDs:  []string{"EURUSD"},
		Risk: models.RiskLimits{
			RiskPct:          1.0,
			MaxOpenPositions: 3,
			MaxTradesPerDay:  10,
		},
		Active: true,
		Halt:   models.HaltState{RiskMultiplier: 1.0},
	}
}

func newFixture(t *testing.T, accounts ...models.Account) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Scan.Interval = time.Minute
	cfg.Scan.PendingTTL = time.Hour
	cfg.Scan.StoreCapacity = 100
	cfg.Scan.ReferenceTZ = "UTC"
	cfg.Recovery.WindowToHour = 12
	cfg.Recovery.Grace = 2 * time.Hour
	cfg.Milestones = []models.Milestone{
		{Pips: 15, Fraction: 0.3},
		{Pips: 30, Fraction: 0.3},
		{Pips: 50, Fraction: 0.4},
	}

	registry := &accsvc.Registry{}
	registry.Swap(accounts)

	shared := bootsvc.NewShared(cfg)
	md := newFakeProvider()
	gw := newFakeGateway()

	s := NewScanner(cfg, shared, registry, recsvc.NewSweeper(cfg, registry),
		md, gw, notify.NewStdout(), journalsvc.NewJournal(nil))
	return &fixture{scanner: s, shared: shared, registry: registry, md: md, gw: gw}
}

func scriptedCandidate() models.CandidateSignal {
	return models.CandidateSignal{
		InstID:     "EURUSD",
		Side:       models.SideBuy,
		Entry:      1.1001,
		Stop:       1.0981,
		Targets:    []float64{1.1021, 1.1041},
		Confidence: 0.9,
		Strategy:   "scripted",
		Reason:     "test setup",
	}
}

// --- тесты ---

func TestCycleAcceptsAndPlacesOrder(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "scripted"))
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fx.md.set("EURUSD", 1.1000, 1.1001, now)

	deps := fx.shared.Get()
	deps.Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted", out: []models.CandidateSignal{scriptedCandidate()}}
	})

	if !fx.scanner.Cycle(context.Background(), now) {
		t.Fatal("cycle must run")
	}

	if len(fx.gw.placed) != 1 {
		t.Fatalf("expected 1 order placed, got %d", len(fx.gw.placed))
	}
	pending := storesvc.StatusPending
	sigs := deps.Store.List(&pending, "alpha")
	if len(sigs) != 1 {
		t.Fatalf("expected 1 pending signal, got %d", len(sigs))
	}
	if sigs[0].RiskFrac != 0.01 {
		t.Fatalf("risk frac = %.4f, want 0.01", sigs[0].RiskFrac)
	}

	o := fx.scanner.Outcomes()["alpha"]
	if o.Accepted != 1 || o.Note != "ok" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	if !fx.scanner.Ready() {
		t.Fatal("scanner must be ready after first cycle")
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "scripted"))
	now := time.Now()
	fx.md.set("EURUSD", 1.1000, 1.1001, now)
	fx.shared.Get().Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted"}
	})

	fx.md.blockNext.Store(true)

	first := make(chan bool)
	go func() { first <- fx.scanner.Cycle(context.Background(), now) }()

	<-fx.md.entered // первый цикл завис на котировках

	if fx.scanner.Cycle(context.Background(), now.Add(time.Minute)) {
		t.Fatal("overlapping cycle must be skipped, not queued")
	}

	close(fx.md.release)
	if !<-first {
		t.Fatal("blocked cycle must finish as a normal run")
	}

	// после завершения следующий тик снова проходит
	if !fx.scanner.Cycle(context.Background(), now.Add(2*time.Minute)) {
		t.Fatal("cycle after release must run")
	}
}

func TestStrategyPanicIsolatedPerAccount(t *testing.T) {
	fx := newFixture(t,
		scannerAccount("broken", "panicky"),
		scannerAccount("alpha", "scripted"),
	)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fx.md.set("EURUSD", 1.1000, 1.1001, now)

	deps := fx.shared.Get()
	deps.Strategies.Register("panicky", func() stratsvc.Strategy { return &panicky{} })
	deps.Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted", out: []models.CandidateSignal{scriptedCandidate()}}
	})

	if !fx.scanner.Cycle(context.Background(), now) {
		t.Fatal("cycle must survive strategy panic")
	}

	out := fx.scanner.Outcomes()
	if out["broken"].Note != "strategy fault" {
		t.Fatalf("broken account outcome: %+v", out["broken"])
	}
	if out["alpha"].Accepted != 1 {
		t.Fatalf("healthy account must not be affected: %+v", out["alpha"])
	}
}

func TestUnknownStrategyReportedNotFatal(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "ghost"))
	now := time.Now()
	fx.md.set("EURUSD", 1.1000, 1.1001, now)

	if !fx.scanner.Cycle(context.Background(), now) {
		t.Fatal("cycle must run")
	}
	o := fx.scanner.Outcomes()["alpha"]
	if o.Note == "" || o.Note == "ok" {
		t.Fatalf("expected strategy resolution error in outcome, got %+v", o)
	}
}

func TestHaltedAccountSkippedBeforeFetch(t *testing.T) {
	acct := scannerAccount("alpha", "scripted")
	fx := newFixture(t, acct)
	now := time.Now()
	fx.md.set("EURUSD", 1.1000, 1.1001, now)
	fx.shared.Get().Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted", out: []models.CandidateSignal{scriptedCandidate()}}
	})

	fx.registry.SetNewsHalt("alpha", now.Add(time.Hour), now)

	fx.scanner.Cycle(context.Background(), now)

	if o := fx.scanner.Outcomes()["alpha"]; o.Note != "halt active" {
		t.Fatalf("expected halt outcome, got %+v", o)
	}
	if len(fx.gw.placed) != 0 {
		t.Fatal("halted account must not trade")
	}
}

func TestPlaceOrderFailureCancelsLocalSignal(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "scripted"))
	now := time.Now()
	fx.md.set("EURUSD", 1.1000, 1.1001, now)
	deps := fx.shared.Get()
	deps.Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted", out: []models.CandidateSignal{scriptedCandidate()}}
	})
	fx.gw.placeErr = fmt.Errorf("broker unavailable")

	fx.scanner.Cycle(context.Background(), now)

	cancelled := storesvc.StatusCancelled
	sigs := deps.Store.List(&cancelled, "alpha")
	if len(sigs) != 1 {
		t.Fatalf("failed placement must cancel the local signal, got %d cancelled", len(sigs))
	}
	if o := fx.scanner.Outcomes()["alpha"]; o.Accepted != 0 {
		t.Fatalf("nothing must count as accepted: %+v", o)
	}
}

func TestLivePriceSweepDispatchesPartialExits(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "scripted"))
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	deps := fx.shared.Get()
	fx.shared.Get().Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted"} // кандидатов нет, только свип
	})

	sig := deps.Store.Register(scriptedCandidate(), "alpha", 0.01,
		[]models.Milestone{{Pips: 15, Fraction: 0.3}, {Pips: 30, Fraction: 0.3}, {Pips: 50, Fraction: 0.4}}, now)
	deps.Store.OnFillConfirmed(sig.ID, "ord-1", 1.1001, now)

	// +32 пипса от входа: две ступени
	fx.md.set("EURUSD", 1.10325, 1.10335, now)
	fx.scanner.Cycle(context.Background(), now.Add(time.Minute))

	if len(fx.gw.partials) != 2 {
		t.Fatalf("expected 2 partial closes, got %d", len(fx.gw.partials))
	}
	if fx.gw.partials[0] != 0.3 || fx.gw.partials[1] != 0.3 {
		t.Fatalf("wrong fractions: %v", fx.gw.partials)
	}

	got, _ := deps.Store.Get(sig.ID)
	if got.Status != storesvc.StatusActive {
		t.Fatalf("signal must stay ACTIVE after partials, got %s", got.Status)
	}
	if got.RemainingFrac != 0.4 {
		t.Fatalf("remaining fraction = %.2f, want 0.4", got.RemainingFrac)
	}
}

func TestLivePriceSweepIssuesStopClose(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "scripted"))
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	deps := fx.shared.Get()
	fx.shared.Get().Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted"}
	})

	sig := deps.Store.Register(scriptedCandidate(), "alpha", 0.01, nil, now)
	deps.Store.OnFillConfirmed(sig.ID, "ord-1", 1.1001, now)

	// цена ниже стопа 1.0981
	fx.md.set("EURUSD", 1.0970, 1.0971, now)
	fx.scanner.Cycle(context.Background(), now.Add(time.Minute))

	if len(fx.gw.closes) != 1 || fx.gw.closes[0].reason != storesvc.ReasonStop {
		t.Fatalf("expected close-all with stop reason, got %v", fx.gw.closes)
	}
	// цена пересечения уходит брокеру вместе с инструкцией
	if p := fx.gw.closes[0].price; math.Abs(p-1.09705) > 1e-9 {
		t.Fatalf("close-all price = %.5f, want mid 1.09705", p)
	}
	// терминальный переход — только по подтверждению брокера
	got, _ := deps.Store.Get(sig.ID)
	if got.Status != storesvc.StatusActive {
		t.Fatalf("signal must stay ACTIVE until broker confirms, got %s", got.Status)
	}
}

func TestLivePriceSweepExpiresStalePending(t *testing.T) {
	fx := newFixture(t, scannerAccount("alpha", "scripted"))
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	deps := fx.shared.Get()
	fx.shared.Get().Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted"}
	})

	sig := deps.Store.Register(scriptedCandidate(), "alpha", 0.01, nil, now)
	fx.md.set("EURUSD", 1.1000, 1.1001, now)

	fx.scanner.Cycle(context.Background(), now.Add(2*time.Hour)) // TTL = 1h

	got, _ := deps.Store.Get(sig.ID)
	if got.Status != storesvc.StatusExpired {
		t.Fatalf("unfilled pending must expire, got %s", got.Status)
	}
	if len(fx.gw.closes) != 0 {
		t.Fatal("expiry is local, no broker calls expected")
	}
}

// Мёртвый фид (ни одной котировки) не должен мешать экспайру: иначе
// PENDING висит нетерминальным и держит слот позиции занятым.
func TestPendingExpiresEvenWithoutQuotes(t *testing.T) {
	acct := scannerAccount("alpha", "scripted")
	fx := newFixture(t, acct)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	deps := fx.shared.Get()
	deps.Strategies.Register("scripted", func() stratsvc.Strategy {
		return &scripted{name: "scripted"}
	})

	sig := deps.Store.Register(scriptedCandidate(), "alpha", 0.01, nil, now)
	// котировок нет вообще — фид лежит

	fx.scanner.Cycle(context.Background(), now.Add(2*time.Hour)) // TTL = 1h

	got, _ := deps.Store.Get(sig.ID)
	if got.Status != storesvc.StatusExpired {
		t.Fatalf("pending must expire without quotes, got %s", got.Status)
	}

	// слот позиции освободился: кандидат с лимитом 1 снова проходит
	acct.Risk.MaxOpenPositions = 1
	d := deps.Gatekeeper.Check(acct, scriptedCandidate(),
		models.Quote{InstID: "EURUSD", Bid: 1.1000, Ask: 1.1001, Ts: now.Add(2 * time.Hour)},
		now.Add(2*time.Hour))
	if !d.Allowed {
		t.Fatalf("slot must be free after expiry, got %s (%s)", d.Reason, d.Detail)
	}
}
