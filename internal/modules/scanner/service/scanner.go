package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"

	"scan_bot/internal/models"
	accsvc "scan_bot/internal/modules/accounts/service"
	bootsvc "scan_bot/internal/modules/bootstrap/service"
	"scan_bot/internal/modules/config"
	gwsvc "scan_bot/internal/modules/gateway/service"
	journalsvc "scan_bot/internal/modules/journal/service"
	mdsvc "scan_bot/internal/modules/marketdata/service"
	recsvc "scan_bot/internal/modules/recovery/service"
	storesvc "scan_bot/internal/modules/store/service"
	stratsvc "scan_bot/internal/modules/strategy/service"
	"scan_bot/internal/notify"
	"scan_bot/pkg/logger"
	"scan_bot/pkg/metrics"
)

// AccountOutcome — итог последнего скана аккаунта. "Молча ничего не
// делаем" — дефект: для каждого аккаунта всегда есть конкретный ответ,
// почему сигналов ноль.
type AccountOutcome struct {
	At         time.Time
	Candidates int
	Accepted   int
	Rejected   int
	Note       string
}

// Scanner гоняет циклы сканирования: один тик — один проход по всем
// активным аккаунтам, без наложения циклов друг на друга.
type Scanner struct {
	cfg      *config.Config
	shared   *bootsvc.Shared
	registry *accsvc.Registry
	sweeper  *recsvc.Sweeper
	md       mdsvc.Provider
	gw       gwsvc.Gateway
	n        notify.Notifier
	j        *journalsvc.Journal

	inFlight atomic.Bool

	busyMu sync.Mutex
	busy   map[string]bool // accountID -> скан ещё идёт

	outMu    sync.RWMutex
	outcomes map[string]AccountOutcome

	lastScan atomic.Int64
	ready    atomic.Bool
}

func NewScanner(
	cfg *config.Config,
	shared *bootsvc.Shared,
	registry *accsvc.Registry,
	sweeper *recsvc.Sweeper,
	md mdsvc.Provider,
	gw gwsvc.Gateway,
	n notify.Notifier,
	j *journalsvc.Journal,
) *Scanner {
	return &Scanner{
		cfg:      cfg,
		shared:   shared,
		registry: registry,
		sweeper:  sweeper,
		md:       md,
		gw:       gw,
		n:        n,
		j:        j,
		busy:     make(map[string]bool),
		outcomes: make(map[string]AccountOutcome),
	}
}

// Run — цикл по тикеру до отмены ctx. Первый проход сразу, не ждём тика.
func (s *Scanner) Run(ctx context.Context) {
	// стартовый recovery-свип ещё до первого скана
	s.sweeper.Sweep(time.Now())

	s.Cycle(ctx, time.Now())

	ticker := time.NewTicker(s.cfg.Scan.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[SCAN] scheduler stopped")
			return
		case now := <-ticker.C:
			s.Cycle(ctx, now)
		}
	}
}

// Cycle — один проход. Если предыдущий ещё идёт, тик пропускается
// (логируется), не встаёт в очередь и не бежит параллельно.
func (s *Scanner) Cycle(ctx context.Context, now time.Time) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		logger.Info("[SCAN] tick skipped: previous cycle still running")
		metrics.ScanTicksSkipped.Inc()
		return false
	}
	defer s.inFlight.Store(false)

	span := opentracing.StartSpan("scan_cycle")
	defer span.Finish()

	s.sweeper.Sweep(now)

	deps := s.shared.Get()
	accounts := s.registry.Active()

	var wg sync.WaitGroup
	for _, acct := range accounts {
		if !s.markBusy(acct.ID) {
			// сюда можно попасть, если скан аккаунта из прошлого цикла
			// ещё висит на внешнем вызове
			logger.Info("[SCAN] account=%s still busy, skipped this tick", acct.ID)
			continue
		}

		wg.Add(1)
		go func(acct models.Account) {
			defer wg.Done()
			defer s.unmarkBusy(acct.ID)
			defer func() {
				if r := recover(); r != nil {
					logger.Error("[SCAN] account=%s panic recovered: %v", acct.ID, r)
					metrics.AccountScanErrors.Inc()
					s.setOutcome(acct.ID, AccountOutcome{At: now, Note: fmt.Sprintf("scan panic: %v", r)})
				}
			}()

			child := opentracing.StartSpan("scan_account", opentracing.ChildOf(span.Context()))
			child.SetTag("account", acct.ID)
			defer child.Finish()

			s.scanAccount(ctx, deps, acct, now)
		}(acct)
	}
	wg.Wait()

	s.sweepLivePrices(ctx, deps, now)

	metrics.ScanCycles.Inc()
	s.lastScan.Store(now.Unix())
	s.ready.Store(true)
	return true
}

func (s *Scanner) markBusy(accountID string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[accountID] {
		return false
	}
	s.busy[accountID] = true
	return true
}

func (s *Scanner) unmarkBusy(accountID string) {
	s.busyMu.Lock()
	delete(s.busy, accountID)
	s.busyMu.Unlock()
}

// scanAccount: fetch → evaluate → gate → register → execute, строго
// последовательно внутри аккаунта. Любой сбой изолирован: остальные
// аккаунты цикла не страдают.
func (s *Scanner) scanAccount(ctx context.Context, deps bootsvc.Deps, acct models.Account, now time.Time) {
	// halt читается до любого похода за данными
	if acct.Halt.Halted(now) {
		s.setOutcome(acct.ID, AccountOutcome{At: now, Note: "halt active"})
		return
	}

	quotes, err := s.md.GetQuotes(ctx, acct.InstIDs)
	if err != nil {
		logger.Error("[SCAN] account=%s quote fetch failed: %v", acct.ID, err)
		metrics.AccountScanErrors.Inc()
		s.setOutcome(acct.ID, AccountOutcome{At: now, Note: "quote fetch failed"})
		return
	}

	strat, err := deps.Strategies.ForAccount(acct.ID, acct.Strategy)
	if err != nil {
		logger.Error("[SCAN] account=%s: %v", acct.ID, err)
		s.setOutcome(acct.ID, AccountOutcome{At: now, Note: err.Error()})
		return
	}

	candidates, err := safeEvaluate(strat, quotes)
	if err != nil {
		// сбойная стратегия = ноль кандидатов, планировщик живёт дальше
		logger.Error("[SCAN] account=%s strategy fault: %v", acct.ID, err)
		metrics.AccountScanErrors.Inc()
		s.setOutcome(acct.ID, AccountOutcome{At: now, Note: "strategy fault"})
		return
	}
	if len(candidates) == 0 {
		s.setOutcome(acct.ID, AccountOutcome{At: now, Note: "no strategy output"})
		return
	}

	accepted, rejected := 0, 0
	for _, cand := range candidates {
		q := quotes[cand.InstID]

		dec := deps.Gatekeeper.Check(acct, cand, q, now)
		if !dec.Allowed {
			rejected++
			s.j.RecordRejection(ctx, acct.ID, cand.InstID, string(dec.Reason), dec.Detail, now)
			continue
		}

		sig := deps.Store.Register(cand, acct.ID, dec.RiskFrac, s.cfg.Milestones, now)
		metrics.SignalsAccepted.Inc()

		if _, err := s.gw.PlaceOrder(ctx, sig); err != nil {
			// транзиентный сбой брокера: локальный сигнал снимаем, на
			// следующем тике стратегия предложит заново
			logger.Error("[SCAN] account=%s place order failed: %v", acct.ID, err)
			deps.Store.OnClosed(sig.ID, storesvc.ReasonManual, 0, now)
			continue
		}

		accepted++
		s.n.Sendf("🔔 [%s] %s %s @ %.5f SL=%.5f conf=%.2f (account=%s)\n%s",
			sig.InstID, sig.Strategy, sig.Side, sig.Entry, sig.Stop, sig.Confidence, acct.ID, sig.Reason)
	}

	note := "ok"
	if accepted == 0 {
		note = "all candidates rejected"
	}
	s.setOutcome(acct.ID, AccountOutcome{
		At: now, Candidates: len(candidates), Accepted: accepted, Rejected: rejected, Note: note,
	})
}

func safeEvaluate(strat stratsvc.Strategy, quotes map[string]models.Quote) (cands []models.CandidateSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return strat.Evaluate(quotes), nil
}

// sweepLivePrices прокатывает живые цены через все нетерминальные
// сигналы: экспайр PENDING, частичные выходы и стоп/тейк по ACTIVE.
func (s *Scanner) sweepLivePrices(ctx context.Context, deps bootsvc.Deps, now time.Time) {
	// экспайр не зависит от котировок: иначе мёртвый фид вечно держит
	// PENDING нетерминальным и лимит позиций заблокированным
	deps.Store.ExpireOverdue(now)

	open := deps.Store.OpenIDs()
	if len(open) == 0 {
		return
	}

	seen := map[string]struct{}{}
	insts := make([]string, 0, len(open))
	for _, inst := range open {
		if _, ok := seen[inst]; !ok {
			seen[inst] = struct{}{}
			insts = append(insts, inst)
		}
	}

	quotes, err := s.md.GetQuotes(ctx, insts)
	if err != nil {
		logger.Error("[SCAN] live-price sweep: %v", err)
		return
	}

	for id, inst := range open {
		q, ok := quotes[inst]
		if !ok || q.Stale || q.Bid <= 0 {
			continue
		}
		px := q.Mid()

		exits := deps.Store.UpdateLivePrice(id, px, now)
		for _, ex := range exits {
			metrics.PartialExits.Inc()
			if err := s.gw.ClosePartial(ctx, ex.OrderRef, ex.Fraction); err != nil {
				logger.Error("[SCAN] partial close %s: %v", ex.OrderRef, err)
				continue
			}
			s.n.Sendf("✂️ [%s] +%.0f pips: closed %.0f%% of position (signal=%s)",
				ex.InstID, ex.AtPips, ex.Fraction*100, ex.SignalID)
		}

		sig, ok := deps.Store.Get(id)
		if !ok || sig.Status != storesvc.StatusActive {
			continue
		}
		// стоп/тейк мониторим сами: брокеру уходит close-all, терминальный
		// переход случится по его подтверждению
		crossedStop := (sig.Side == models.SideBuy && px <= sig.Stop) ||
			(sig.Side == models.SideSell && px >= sig.Stop)
		finalTarget := 0.0
		if n := len(sig.Targets); n > 0 {
			finalTarget = sig.Targets[n-1]
		}
		crossedTarget := finalTarget > 0 &&
			((sig.Side == models.SideBuy && px >= finalTarget) ||
				(sig.Side == models.SideSell && px <= finalTarget))

		switch {
		case crossedStop:
			if err := s.gw.CloseAll(ctx, sig.OrderRef, storesvc.ReasonStop, px); err != nil {
				logger.Error("[SCAN] close-all (stop) %s: %v", sig.OrderRef, err)
			}
		case crossedTarget:
			if err := s.gw.CloseAll(ctx, sig.OrderRef, storesvc.ReasonTarget, px); err != nil {
				logger.Error("[SCAN] close-all (target) %s: %v", sig.OrderRef, err)
			}
		}
	}
}

func (s *Scanner) setOutcome(accountID string, o AccountOutcome) {
	s.outMu.Lock()
	s.outcomes[accountID] = o
	s.outMu.Unlock()
}

// Outcomes — копия статусов последнего скана (для дашборда).
func (s *Scanner) Outcomes() map[string]AccountOutcome {
	s.outMu.RLock()
	defer s.outMu.RUnlock()

	out := make(map[string]AccountOutcome, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = v
	}
	return out
}

func (s *Scanner) Ready() bool { return s.ready.Load() }

func (s *Scanner) LastScan() time.Time {
	u := s.lastScan.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
