package service

import (
	"time"

	"scan_bot/internal/models"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusFilled    Status = "FILLED"
	StatusStopped   Status = "STOPPED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusActive
}

type CloseReason string

const (
	ReasonTarget   CloseReason = "target"
	ReasonStop     CloseReason = "stop"
	ReasonManual   CloseReason = "manual"
	ReasonDuration CloseReason = "duration"
)

// TrackedSignal — кандидат, прошедший риск-проверки. Принадлежит
// только Store: наружу уходят копии, мутации только через методы Store.
type TrackedSignal struct {
	ID        string
	AccountID string

	InstID     string
	Side       models.Side
	Entry      float64
	Stop       float64
	Targets    []float64
	Confidence float64
	Strategy   models.StrategyType
	Reason     string

	// Доля риска на сделку (после halt-множителя), для exposure-проверок.
	RiskFrac float64

	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time // осмысленно только пока PENDING
	FilledAt  *time.Time
	ClosedAt  *time.Time

	OrderRef  string // внешний ордер, движок им не владеет
	FillPrice float64

	LastPrice     float64
	PipsFromEntry float64 // PENDING: сколько до предложенного входа
	PipsToStop    float64
	PipsToTarget  float64 // до последнего (финального) таргета
	Unrealized    float64 // пипсы по незакрытой доле
	Realized      float64 // пипсы, зафиксированные частичными выходами

	// Леджер частичных выходов: доли от ИСХОДНОГО размера, кумулятивно.
	Milestones     []models.Milestone
	NextMilestone  int
	ClosedFraction float64
	RemainingFrac  float64

	CloseReason CloseReason
	ClosePrice  float64
}

// clone — глубокая копия для читателей.
func (t *TrackedSignal) clone() TrackedSignal {
	cp := *t
	cp.Targets = append([]float64(nil), t.Targets...)
	cp.Milestones = append([]models.Milestone(nil), t.Milestones...)
	if t.FilledAt != nil {
		v := *t.FilledAt
		cp.FilledAt = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		cp.ClosedAt = &v
	}
	return cp
}

// направление в знаках: BUY=+1, SELL=-1
func (t *TrackedSignal) dir() float64 {
	if t.Side == models.SideSell {
		return -1
	}
	return 1
}

// PartialExit — инструкция закрыть долю позиции (шлётся в гейтвей).
type PartialExit struct {
	SignalID     string
	OrderRef     string
	InstID       string
	MilestoneIdx int
	Fraction     float64 // доля исходного размера
	AtPips       float64
}
