package models

import "time"

// RiskLimits — лимиты аккаунта. Меняются только через reload конфига.
type RiskLimits struct {
	RiskPct          float64 `yaml:"risk_pct"`           // доля equity на сделку, 1.0 => 1%
	MaxOpenPositions int     `yaml:"max_open_positions"` // одновременно ACTIVE сигналов
	MaxTradesPerDay  int     `yaml:"max_trades_per_day"`
	MaxExposurePct   float64 `yaml:"max_exposure_pct"` // суммарный риск по ACTIVE, %
	MaxSpreadPips    float64 `yaml:"max_spread_pips"`

	// Сессионные исключения: часы (в reference TZ), когда инструмент не торгуем.
	SessionExclusions []SessionWindow `yaml:"session_exclusions"`
	ExcludedInstIDs   []string        `yaml:"excluded_instruments"`
}

// SessionWindow — [FromHour, ToHour) в reference TZ. InstID пустой = все инструменты.
type SessionWindow struct {
	InstID   string `yaml:"instrument"`
	FromHour int    `yaml:"from_hour"`
	ToHour   int    `yaml:"to_hour"`
}

func (w SessionWindow) Contains(instID string, t time.Time) bool {
	if w.InstID != "" && w.InstID != instID {
		return false
	}
	h := t.Hour()
	if w.FromHour <= w.ToHour {
		return h >= w.FromHour && h < w.ToHour
	}
	// окно через полночь, напр. 22-2
	return h >= w.FromHour || h < w.ToHour
}

// HaltState — тайм-боксовое подавление новых сделок по аккаунту.
// Ставится гейткипером (новости, серия убытков), снимается recovery-свипом.
type HaltState struct {
	NewsHaltUntil  *time.Time
	ThrottleUntil  *time.Time
	SetAt          time.Time // когда выставили последний halt
	RiskMultiplier float64   // 1.0 по умолчанию, ниже после серии убытков
}

func (h HaltState) Halted(now time.Time) bool {
	if h.NewsHaltUntil != nil && now.Before(*h.NewsHaltUntil) {
		return true
	}
	if h.ThrottleUntil != nil && now.Before(*h.ThrottleUntil) {
		return true
	}
	return false
}

// Account — учётка со своей стратегией и лимитами. Загружается из конфига,
// в рантайме никогда не удаляется, только деактивируется.
type Account struct {
	ID       string       `yaml:"id"`
	Strategy StrategyType `yaml:"strategy"`
	InstIDs  []string     `yaml:"instruments"`
	Risk     RiskLimits   `yaml:"risk"`
	Active   bool         `yaml:"active"`

	Halt HaltState `yaml:"-"`
}
