package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"scan_bot/internal/models"
	"scan_bot/pkg/logger"
	"scan_bot/pkg/metrics"
)

// Store — единственный общий мутабельный стейт процесса: ограниченный
// реестр сигналов с машиной состояний. Пишут планировщик, прайс-апдейтер
// и колбэки исполнения; читают дашборд и нотификации. Всё под одним
// мьютексом, читатели получают копии.
type Store struct {
	cap        int
	pendingTTL time.Duration
	loc        *time.Location // граница торгового дня

	mu   sync.RWMutex
	byID map[string]*TrackedSignal
	ids  []string // порядок по CreatedAt, старые в начале

	// дневные счётчики принятых: переживают эвикцию, иначе под нагрузкой
	// дневной лимит недосчитывает
	accepted map[string]*dayTally
}

type dayTally struct {
	y int
	m time.Month
	d int
	n int
}

func NewStore(capacity int, pendingTTL time.Duration, loc *time.Location) *Store {
	if capacity <= 0 {
		capacity = 100
	}
	if pendingTTL <= 0 {
		pendingTTL = time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		cap:        capacity,
		pendingTTL: pendingTTL,
		loc:        loc,
		byID:       make(map[string]*TrackedSignal),
		accepted:   make(map[string]*dayTally),
	}
}

// Register создаёт PENDING-сигнал из прошедшего гейт кандидата.
func (s *Store) Register(cand models.CandidateSignal, accountID string, riskFrac float64, milestones []models.Milestone, now time.Time) TrackedSignal {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &TrackedSignal{
		ID:        uuid.NewString(),
		AccountID: accountID,

		InstID:     cand.InstID,
		Side:       cand.Side,
		Entry:      cand.Entry,
		Stop:       cand.Stop,
		Targets:    append([]float64(nil), cand.Targets...),
		Confidence: cand.Confidence,
		Strategy:   cand.Strategy,
		Reason:     cand.Reason,

		RiskFrac: riskFrac,

		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),

		Milestones:    append([]models.Milestone(nil), milestones...),
		RemainingFrac: 1.0,
	}

	s.byID[t.ID] = t
	s.ids = append(s.ids, t.ID)
	s.bumpAcceptedLocked(accountID, now)
	s.evictLocked()
	metrics.StoreSize.Set(float64(len(s.ids)))

	return t.clone()
}

// evictLocked держит реестр в пределах cap: старейший по CreatedAt
// вылетает независимо от статуса. Ордер на бирже при этом не трогаем —
// теряется только локальная видимость, о чём честно предупреждаем.
func (s *Store) evictLocked() {
	for len(s.ids) > s.cap {
		oldest := s.ids[0]
		// сдвиг на месте: re-slice с головы копил бы хвост backing-массива
		copy(s.ids, s.ids[1:])
		s.ids = s.ids[:len(s.ids)-1]
		if t, ok := s.byID[oldest]; ok {
			if t.Status == StatusActive {
				logger.Error("[STORE] evicting ACTIVE signal %s (%s %s) — order %s keeps running untracked",
					t.ID, t.InstID, t.Side, t.OrderRef)
			} else {
				logger.Info("[STORE] evicted signal %s status=%s", t.ID, t.Status)
			}
			delete(s.byID, oldest)
			metrics.StoreEvictions.Inc()
		}
	}
}

// OnFillConfirmed — подтверждение входа от гейтвея. Только PENDING→ACTIVE;
// всё остальное (повторный fill, fill после экспайра) — аномалия и no-op.
func (s *Store) OnFillConfirmed(signalID, orderRef string, fillPrice float64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[signalID]
	if !ok {
		logger.Info("[STORE] fill for unknown signal %s (evicted?)", signalID)
		return false
	}
	if t.Status != StatusPending {
		logger.Error("[STORE] anomaly: fill for %s in status %s, ignored", signalID, t.Status)
		return false
	}

	t.Status = StatusActive
	t.OrderRef = orderRef
	t.FillPrice = fillPrice
	filledAt := now
	t.FilledAt = &filledAt
	return true
}

// UpdateLivePrice прокатывает живую цену через сигнал.
// PENDING: дистанция до входа + проверка экспайра.
// ACTIVE: P/L, дистанции, лестница частичных выходов по возрастанию —
// каждая ступень срабатывает максимум один раз.
func (s *Store) UpdateLivePrice(signalID string, px float64, now time.Time) []PartialExit {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[signalID]
	if !ok {
		return nil
	}

	switch t.Status {
	case StatusPending:
		t.LastPrice = px
		t.PipsFromEntry = models.Pips(t.InstID, t.dir()*(px-t.Entry))
		if now.After(t.ExpiresAt) {
			t.Status = StatusExpired
			closedAt := now
			t.ClosedAt = &closedAt
			logger.Info("[STORE] signal %s expired after %s", t.ID, s.pendingTTL)
		}
		return nil

	case StatusActive:
		t.LastPrice = px
		basis := t.FillPrice
		if basis == 0 {
			basis = t.Entry
		}
		t.Unrealized = models.Pips(t.InstID, t.dir()*(px-basis)) * t.RemainingFrac
		t.PipsToStop = models.Pips(t.InstID, t.dir()*(px-t.Stop))
		if n := len(t.Targets); n > 0 {
			t.PipsToTarget = models.Pips(t.InstID, t.dir()*(t.Targets[n-1]-px))
		}

		profit := models.Pips(t.InstID, t.dir()*(px-basis))
		var exits []PartialExit
		for t.NextMilestone < len(t.Milestones) {
			m := t.Milestones[t.NextMilestone]
			if profit < m.Pips {
				break
			}
			exits = append(exits, PartialExit{
				SignalID:     t.ID,
				OrderRef:     t.OrderRef,
				InstID:       t.InstID,
				MilestoneIdx: t.NextMilestone,
				Fraction:     m.Fraction,
				AtPips:       m.Pips,
			})
			t.ClosedFraction += m.Fraction
			t.RemainingFrac = 1.0 - t.ClosedFraction
			if t.RemainingFrac < 0 {
				t.RemainingFrac = 0
			}
			t.Realized += m.Pips * m.Fraction
			t.NextMilestone++
		}
		return exits

	default:
		// терминальные статусы цена не трогает
		return nil
	}
}

// ExpireOverdue переводит просроченные PENDING в EXPIRED независимо от
// котировок: упавший фид не должен вечно держать слот позиции занятым.
func (s *Store) ExpireOverdue(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.byID {
		if t.Status != StatusPending || !now.After(t.ExpiresAt) {
			continue
		}
		t.Status = StatusExpired
		closedAt := now
		t.ClosedAt = &closedAt
		logger.Info("[STORE] signal %s expired after %s", t.ID, s.pendingTTL)
		n++
	}
	return n
}

// OnClosed — терминальный переход. Идемпотентен: повторное закрытие
// уже терминального сигнала — no-op.
func (s *Store) OnClosed(signalID string, reason CloseReason, closePrice float64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[signalID]
	if !ok {
		logger.Info("[STORE] close for unknown signal %s (evicted?)", signalID)
		return false
	}
	if t.Status.Terminal() {
		logger.Info("[STORE] anomaly: close(%s) for %s already %s, ignored", reason, signalID, t.Status)
		return false
	}

	var next Status
	switch {
	case t.Status == StatusActive && reason == ReasonTarget:
		next = StatusFilled
	case t.Status == StatusActive && reason == ReasonStop:
		next = StatusStopped
	case reason == ReasonManual || reason == ReasonDuration:
		// manual/duration валиден и для PENDING, и для ACTIVE
		next = StatusCancelled
	default:
		logger.Error("[STORE] anomaly: close(%s) for %s in status %s, ignored", reason, signalID, t.Status)
		return false
	}

	// подтверждение без цены (бумажный брокер, обрыв данных) — берём
	// последнюю виденную, иначе realized считается от нуля
	if closePrice == 0 {
		closePrice = t.LastPrice
	}

	t.Status = next
	t.CloseReason = reason
	t.ClosePrice = closePrice
	closedAt := now
	t.ClosedAt = &closedAt

	if next == StatusFilled || next == StatusStopped {
		basis := t.FillPrice
		if basis == 0 {
			basis = t.Entry
		}
		if closePrice > 0 {
			t.Realized += models.Pips(t.InstID, t.dir()*(closePrice-basis)) * t.RemainingFrac
		}
		t.RemainingFrac = 0
		t.Unrealized = 0
	}
	return true
}

// List — снапшот-копии; фильтры опциональны (nil / "").
func (s *Store) List(status *Status, accountID string) []TrackedSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TrackedSignal, 0, len(s.ids))
	for _, id := range s.ids {
		t := s.byID[id]
		if t == nil {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		out = append(out, t.clone())
	}
	return out
}

func (s *Store) Get(signalID string) (TrackedSignal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[signalID]
	if !ok {
		return TrackedSignal{}, false
	}
	return t.clone(), true
}

// OpenIDs — id всех нетерминальных сигналов c инструментами (для прайс-свипа).
func (s *Store) OpenIDs() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for _, id := range s.ids {
		if t := s.byID[id]; t != nil && !t.Status.Terminal() {
			out[id] = t.InstID
		}
	}
	return out
}

// OpenCount — нетерминальные сигналы аккаунта (лимит позиций считает
// и PENDING: заявка уже ушла брокеру, слот занят).
func (s *Store) OpenCount(accountID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.byID {
		if t.AccountID == accountID && !t.Status.Terminal() {
			n++
		}
	}
	return n
}

func (s *Store) bumpAcceptedLocked(accountID string, now time.Time) {
	y, m, d := now.In(s.loc).Date()
	tally := s.accepted[accountID]
	if tally == nil || tally.y != y || tally.m != m || tally.d != d {
		tally = &dayTally{y: y, m: m, d: d}
		s.accepted[accountID] = tally
	}
	tally.n++
}

// AcceptedToday — принятые сегодня (день в reference TZ). Счётчик, а не
// обход стора: эвикция не стирает историю дня.
func (s *Store) AcceptedToday(accountID string, now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := now.In(s.loc).Date()
	tally := s.accepted[accountID]
	if tally == nil || tally.y != y || tally.m != m || tally.d != d {
		return 0
	}
	return tally.n
}

// ActiveRisk — суммарная доля риска по ACTIVE сигналам аккаунта.
func (s *Store) ActiveRisk(accountID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := 0.0
	for _, t := range s.byID {
		if t.AccountID == accountID && t.Status == StatusActive {
			sum += t.RiskFrac * t.RemainingFrac
		}
	}
	return sum
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
