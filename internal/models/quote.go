package models

import (
	"strings"
	"time"
)

// Quote — bid/ask снапшот по инструменту. Stale=true значит котировка
// старше допустимого порога, провайдер обязан это пометить явно.
type Quote struct {
	InstID string
	Bid    float64
	Ask    float64
	Ts     time.Time
	Stale  bool
}

func (q Quote) Mid() float64    { return (q.Bid + q.Ask) / 2 }
func (q Quote) Spread() float64 { return q.Ask - q.Bid }

func (q Quote) SpreadPips() float64 {
	return q.Spread() / PipSize(q.InstID)
}

// PipSize — размер пипса: 0.01 для JPY-пар, иначе 0.0001.
func PipSize(instID string) float64 {
	if strings.Contains(strings.ToUpper(instID), "JPY") {
		return 0.01
	}
	return 0.0001
}

// Pips переводит ценовую дистанцию в пипсы по инструменту.
func Pips(instID string, dist float64) float64 {
	return dist / PipSize(instID)
}
