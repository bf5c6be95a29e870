package service

import (
	"fmt"
	"time"

	"scan_bot/internal/models"
	"scan_bot/internal/modules/store/service"
	"scan_bot/pkg/logger"
	"scan_bot/pkg/metrics"
)

type RejectReason string

const (
	RejectAccountInactive    RejectReason = "account_inactive"
	RejectNewsHalt           RejectReason = "news_halt"
	RejectThrottled          RejectReason = "throttled"
	RejectPositionLimit      RejectReason = "position_limit"
	RejectDailyLimit         RejectReason = "daily_limit"
	RejectInstrumentExcluded RejectReason = "instrument_excluded"
	RejectSessionExcluded    RejectReason = "session_excluded"
	RejectQuoteStale         RejectReason = "quote_stale"
	RejectSpreadTooHigh      RejectReason = "spread_too_high"
	RejectExposureLimit      RejectReason = "exposure_limit"
)

// Decision — никогда не голый bool: отказ всегда несёт причину,
// по которой потом можно ответить "почему не торговали".
type Decision struct {
	Allowed bool
	Reason  RejectReason
	Detail  string

	// Доля риска кандидата с учётом halt-множителя (для exposure и Store).
	RiskFrac float64
}

func allow(riskFrac float64) Decision {
	return Decision{Allowed: true, RiskFrac: riskFrac}
}

func reject(reason RejectReason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Gatekeeper решает, может ли кандидат стать TrackedSignal.
// Side-эффектов на отказ нет, кроме записи в аудит.
type Gatekeeper struct {
	store *service.Store
	loc   *time.Location
	audit *Audit
}

func NewGatekeeper(store *service.Store, loc *time.Location) *Gatekeeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Gatekeeper{store: store, loc: loc, audit: NewAudit(auditCapPerAccount)}
}

func (g *Gatekeeper) Audit() *Audit { return g.audit }

// Check гоняет кандидата через все проверки по порядку. Первая
// проваленная решает; отказ логируется и попадает в аудит.
func (g *Gatekeeper) Check(acct models.Account, cand models.CandidateSignal, q models.Quote, now time.Time) Decision {
	d := g.check(acct, cand, q, now)
	if !d.Allowed {
		logger.Info("[GATE] account=%s inst=%s rejected: %s (%s)", acct.ID, cand.InstID, d.Reason, d.Detail)
		g.audit.Record(acct.ID, cand.InstID, string(d.Reason), now)
		metrics.SignalsRejected.WithLabelValues(string(d.Reason)).Inc()
	}
	return d
}

func (g *Gatekeeper) check(acct models.Account, cand models.CandidateSignal, q models.Quote, now time.Time) Decision {
	// 1. аккаунт живой и не в halt-е
	if !acct.Active {
		return reject(RejectAccountInactive, "account disabled")
	}
	if acct.Halt.NewsHaltUntil != nil && now.Before(*acct.Halt.NewsHaltUntil) {
		return reject(RejectNewsHalt, "news halt until %s", acct.Halt.NewsHaltUntil.Format(time.RFC3339))
	}
	if acct.Halt.ThrottleUntil != nil && now.Before(*acct.Halt.ThrottleUntil) {
		return reject(RejectThrottled, "throttled until %s", acct.Halt.ThrottleUntil.Format(time.RFC3339))
	}

	// 2. лимит одновременных позиций
	if open := g.store.OpenCount(acct.ID); open >= acct.Risk.MaxOpenPositions {
		return reject(RejectPositionLimit, "open=%d max=%d", open, acct.Risk.MaxOpenPositions)
	}

	// 3. лимит сделок за день (день в reference TZ)
	if taken := g.store.AcceptedToday(acct.ID, now); taken >= acct.Risk.MaxTradesPerDay {
		return reject(RejectDailyLimit, "today=%d max=%d", taken, acct.Risk.MaxTradesPerDay)
	}

	// 4. исключения: инструмент и сессионные окна
	for _, ex := range acct.Risk.ExcludedInstIDs {
		if ex == cand.InstID {
			return reject(RejectInstrumentExcluded, "%s excluded", cand.InstID)
		}
	}
	ref := now.In(g.loc)
	for _, w := range acct.Risk.SessionExclusions {
		if w.Contains(cand.InstID, ref) {
			return reject(RejectSessionExcluded, "%s in window %d-%d", cand.InstID, w.FromHour, w.ToHour)
		}
	}

	// 5. качество котировки
	if q.Stale {
		return reject(RejectQuoteStale, "quote ts=%s", q.Ts.Format(time.RFC3339))
	}
	if acct.Risk.MaxSpreadPips > 0 && q.Bid > 0 && q.Ask > 0 {
		if sp := q.SpreadPips(); sp > acct.Risk.MaxSpreadPips {
			return reject(RejectSpreadTooHigh, "spread=%.1f max=%.1f pips", sp, acct.Risk.MaxSpreadPips)
		}
	}

	// 6. совокупная экспозиция по ACTIVE + этот кандидат
	riskFrac := acct.Risk.RiskPct / 100.0 * acct.Halt.RiskMultiplier
	if acct.Risk.MaxExposurePct > 0 {
		active := g.store.ActiveRisk(acct.ID)
		if active+riskFrac > acct.Risk.MaxExposurePct/100.0 {
			return reject(RejectExposureLimit, "active=%.2f%% + cand=%.2f%% > max=%.2f%%",
				active*100, riskFrac*100, acct.Risk.MaxExposurePct)
		}
	}

	return allow(riskFrac)
}
