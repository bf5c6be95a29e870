package service

import (
	"math"
	"os"
	"testing"
	"time"

	"scan_bot/internal/models"
	"scan_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func quoteAt(instID string, mid float64, now time.Time) models.Quote {
	return models.Quote{InstID: instID, Bid: mid - 0.0001, Ask: mid + 0.0001, Ts: now}
}

func TestEMAWarmupAndConvergence(t *testing.T) {
	e := newEMA(3)
	if e.Ready() {
		t.Fatal("ema must not be ready before warmup")
	}
	e.Update(1.0)
	e.Update(1.0)
	if !func() bool { e.Update(1.0); return e.Ready() }() {
		t.Fatal("ema must be ready after period updates")
	}
	if e.Value() != 1.0 {
		t.Fatalf("flat series must give flat ema, got %f", e.Value())
	}

	// на растущем ряде EMA отстаёт от цены
	e.Update(2.0)
	if e.Value() <= 1.0 || e.Value() >= 2.0 {
		t.Fatalf("ema must lag the price, got %f", e.Value())
	}
}

func TestRSIExtremes(t *testing.T) {
	up := newRSI(3)
	for i := 0; i < 5; i++ {
		up.Update(1.0 + float64(i)*0.01)
	}
	if !up.Ready() || up.Value() != 100 {
		t.Fatalf("monotonic gains must give rsi 100, got %f", up.Value())
	}

	down := newRSI(3)
	for i := 0; i < 5; i++ {
		down.Update(1.0 - float64(i)*0.01)
	}
	if down.Value() != 0 {
		t.Fatalf("monotonic losses must give rsi 0, got %f", down.Value())
	}

	flat := newRSI(3)
	for i := 0; i < 5; i++ {
		flat.Update(1.0)
	}
	if flat.Value() != 50 {
		t.Fatalf("flat series must give neutral rsi, got %f", flat.Value())
	}
}

func TestDonchianBreakoutLong(t *testing.T) {
	s := NewDonchian(DonchianConfig{Period: 5, TrendEMA: 3})
	now := time.Now()

	// канал из пяти плоских наблюдений
	for i := 0; i < 5; i++ {
		if out := s.Evaluate(map[string]models.Quote{"EURUSD": quoteAt("EURUSD", 1.1000, now)}); len(out) != 0 {
			t.Fatalf("no breakout during warmup, got %+v", out)
		}
	}

	// mid выше канала и выше трендовой EMA
	out := s.Evaluate(map[string]models.Quote{"EURUSD": quoteAt("EURUSD", 1.1010, now)})
	if len(out) != 1 {
		t.Fatalf("expected breakout candidate, got %d", len(out))
	}
	c := out[0]
	if c.Side != models.SideBuy {
		t.Fatalf("upside breakout must be BUY, got %s", c.Side)
	}
	if math.Abs(c.Entry-1.1011) > 1e-9 { // ask
		t.Fatalf("entry must be ask, got %.5f", c.Entry)
	}
	wantStop := c.Entry - 25*0.0001
	if math.Abs(c.Stop-wantStop) > 1e-9 {
		t.Fatalf("stop = %.5f, want %.5f", c.Stop, wantStop)
	}
	if len(c.Targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(c.Targets))
	}
	for i, rr := range []float64{1, 2, 3} {
		want := c.Entry + rr*25*0.0001
		if math.Abs(c.Targets[i]-want) > 1e-9 {
			t.Fatalf("target[%d] = %.5f, want %.5f", i, c.Targets[i], want)
		}
	}
}

func TestDonchianBreakoutShort(t *testing.T) {
	s := NewDonchian(DonchianConfig{Period: 5, TrendEMA: 3})
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.Evaluate(map[string]models.Quote{"EURUSD": quoteAt("EURUSD", 1.1000, now)})
	}
	out := s.Evaluate(map[string]models.Quote{"EURUSD": quoteAt("EURUSD", 1.0990, now)})
	if len(out) != 1 || out[0].Side != models.SideSell {
		t.Fatalf("downside breakout must be SELL, got %+v", out)
	}
	if math.Abs(out[0].Entry-1.0989) > 1e-9 { // bid
		t.Fatalf("entry must be bid, got %.5f", out[0].Entry)
	}
	if out[0].Stop <= out[0].Entry {
		t.Fatal("short stop must be above entry")
	}
}

func TestDonchianInsideChannelSilent(t *testing.T) {
	s := NewDonchian(DonchianConfig{Period: 5, TrendEMA: 3})
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.Evaluate(map[string]models.Quote{"EURUSD": quoteAt("EURUSD", 1.1000+float64(i)*0.0002, now)})
	}
	// внутри накопленного канала [1.1000, 1.1008]
	if out := s.Evaluate(map[string]models.Quote{"EURUSD": quoteAt("EURUSD", 1.1004, now)}); len(out) != 0 {
		t.Fatalf("inside channel must be silent, got %+v", out)
	}
}

func TestStrategiesSkipStaleQuotes(t *testing.T) {
	now := time.Now()
	stale := quoteAt("EURUSD", 1.1000, now)
	stale.Stale = true
	snap := map[string]models.Quote{"EURUSD": stale}

	if out := NewDonchian(DonchianConfig{}).Evaluate(snap); len(out) != 0 {
		t.Fatalf("donchian must skip stale quotes, got %+v", out)
	}
	if out := NewEMARSI(EMARSIConfig{}).Evaluate(snap); len(out) != 0 {
		t.Fatalf("emarsi must skip stale quotes, got %+v", out)
	}
}

func TestEMARSICandidateGeometry(t *testing.T) {
	s := NewEMARSI(EMARSIConfig{})
	q := models.Quote{InstID: "EURUSD", Bid: 1.1000, Ask: 1.1001, Ts: time.Now()}

	buy := s.candidate("EURUSD", models.SideBuy, q, 10)
	if buy.Entry != q.Ask {
		t.Fatalf("long entry must be ask, got %.5f", buy.Entry)
	}
	wantStop := q.Ask - 20*0.0001
	if math.Abs(buy.Stop-wantStop) > 1e-9 {
		t.Fatalf("stop = %.5f, want %.5f", buy.Stop, wantStop)
	}
	// rsi=10 при пороге 30: глубина 20 → уверенность 0.5+20/60
	if math.Abs(buy.Confidence-(0.5+20.0/60)) > 1e-9 {
		t.Fatalf("confidence = %.3f", buy.Confidence)
	}

	sell := s.candidate("EURUSD", models.SideSell, q, 95)
	if sell.Entry != q.Bid || sell.Stop <= sell.Entry {
		t.Fatalf("short geometry broken: entry=%.5f stop=%.5f", sell.Entry, sell.Stop)
	}
	if sell.Targets[0] >= sell.Entry {
		t.Fatal("short targets must be below entry")
	}
}

func TestJPYPipSizeInTargets(t *testing.T) {
	s := NewDonchian(DonchianConfig{Period: 2, TrendEMA: 2})
	now := time.Now()

	flat := models.Quote{InstID: "USDJPY", Bid: 155.00, Ask: 155.02, Ts: now}
	s.Evaluate(map[string]models.Quote{"USDJPY": flat})
	s.Evaluate(map[string]models.Quote{"USDJPY": flat})

	brk := models.Quote{InstID: "USDJPY", Bid: 155.50, Ask: 155.52, Ts: now}
	out := s.Evaluate(map[string]models.Quote{"USDJPY": brk})
	if len(out) != 1 {
		t.Fatalf("expected JPY breakout, got %d", len(out))
	}
	// пипс у йены 0.01: стоп в 25 пипсах = 0.25
	wantStop := out[0].Entry - 25*0.01
	if math.Abs(out[0].Stop-wantStop) > 1e-9 {
		t.Fatalf("jpy stop = %.3f, want %.3f", out[0].Stop, wantStop)
	}
}

func TestRegistryCachesPerAccountAndRebuildOnChange(t *testing.T) {
	r := NewRegistry()

	a1, err := r.ForAccount("alpha", models.StrategyEMARSI)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	a2, _ := r.ForAccount("alpha", models.StrategyEMARSI)
	if a1 != a2 {
		t.Fatal("same account+strategy must reuse the instance")
	}

	b, _ := r.ForAccount("beta", models.StrategyEMARSI)
	if a1 == b {
		t.Fatal("accounts must not share indicator state")
	}

	d, err := r.ForAccount("alpha", models.StrategyDonchian)
	if err != nil {
		t.Fatalf("resolve donchian: %v", err)
	}
	if d.Name() != models.StrategyDonchian {
		t.Fatal("strategy switch must rebuild the instance")
	}

	if _, err := r.ForAccount("alpha", "ghost"); err == nil {
		t.Fatal("unknown strategy must error")
	}

	// пустая стратегия — дефолт
	def, err := r.ForAccount("gamma", "")
	if err != nil || def.Name() != models.StrategyEMARSI {
		t.Fatalf("empty strategy must default to emarsi, got %v %v", def, err)
	}
}
