package service

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"scan_bot/internal/models"
)

type EMARSIConfig struct {
	EMAShort      int
	EMALong       int
	RSIPeriod     int
	RSIOverbought float64
	RSIOSold      float64
	StopPips      float64 // дистанция до стопа
	TargetRRs     []float64
}

func (c *EMARSIConfig) defaults() {
	if c.EMAShort <= 0 {
		c.EMAShort = 9
	}
	if c.EMALong <= 0 {
		c.EMALong = 21
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.RSIOverbought == 0 {
		c.RSIOverbought = 70
	}
	if c.RSIOSold == 0 {
		c.RSIOSold = 30
	}
	if c.StopPips <= 0 {
		c.StopPips = 20
	}
	if len(c.TargetRRs) == 0 {
		c.TargetRRs = []float64{1, 2, 3}
	}
}

// EMARSI — контртренд внутри тренда: EMA-кросс задаёт направление,
// RSI ищет перекупленность/перепроданность против него.
type EMARSI struct {
	cfg EMARSIConfig

	mu sync.Mutex
	st map[string]*emarsiState
}

type emarsiState struct {
	emaShort emaState
	emaLong  emaState
	rsi      rsiState
}

func NewEMARSI(cfg EMARSIConfig) *EMARSI {
	cfg.defaults()
	return &EMARSI{cfg: cfg, st: make(map[string]*emarsiState)}
}

func (s *EMARSI) Name() models.StrategyType { return models.StrategyEMARSI }

func (s *EMARSI) Evaluate(snapshot map[string]models.Quote) []models.CandidateSignal {
	s.mu.Lock()
	defer s.mu.Unlock()

	// детерминированный порядок обхода, чтобы прогоны были воспроизводимы
	insts := make([]string, 0, len(snapshot))
	for id := range snapshot {
		insts = append(insts, id)
	}
	sort.Strings(insts)

	out := make([]models.CandidateSignal, 0)
	for _, instID := range insts {
		q := snapshot[instID]
		if q.Stale || q.Bid <= 0 || q.Ask <= 0 {
			continue
		}

		st := s.st[instID]
		if st == nil {
			st = &emarsiState{
				emaShort: newEMA(s.cfg.EMAShort),
				emaLong:  newEMA(s.cfg.EMALong),
				rsi:      newRSI(s.cfg.RSIPeriod),
			}
			s.st[instID] = st
		}

		mid := q.Mid()
		st.emaShort.Update(mid)
		st.emaLong.Update(mid)
		st.rsi.Update(mid)
		if !st.emaShort.Ready() || !st.emaLong.Ready() || !st.rsi.Ready() {
			continue
		}

		rsi := st.rsi.Value()
		var side models.Side
		switch {
		case st.emaShort.Value() > st.emaLong.Value() && rsi < s.cfg.RSIOSold:
			side = models.SideBuy
		case st.emaShort.Value() < st.emaLong.Value() && rsi > s.cfg.RSIOverbought:
			side = models.SideSell
		default:
			continue
		}

		out = append(out, s.candidate(instID, side, q, rsi))
	}
	return out
}

func (s *EMARSI) candidate(instID string, side models.Side, q models.Quote, rsi float64) models.CandidateSignal {
	pip := models.PipSize(instID)
	dist := s.cfg.StopPips * pip

	entry := q.Ask
	stop := entry - dist
	if side == models.SideSell {
		entry = q.Bid
		stop = entry + dist
	}

	targets := make([]float64, 0, len(s.cfg.TargetRRs))
	for _, rr := range s.cfg.TargetRRs {
		if side == models.SideBuy {
			targets = append(targets, entry+rr*dist)
		} else {
			targets = append(targets, entry-rr*dist)
		}
	}

	// чем дальше RSI зашёл за порог, тем увереннее сигнал
	depth := rsi - s.cfg.RSIOverbought
	if side == models.SideBuy {
		depth = s.cfg.RSIOSold - rsi
	}
	conf := math.Min(1.0, 0.5+depth/60)

	return models.CandidateSignal{
		InstID:     instID,
		Side:       side,
		Entry:      entry,
		Stop:       stop,
		Targets:    targets,
		Confidence: conf,
		Strategy:   models.StrategyEMARSI,
		Reason:     fmt.Sprintf("ema%d/%d cross, rsi=%.1f", s.cfg.EMAShort, s.cfg.EMALong, rsi),
	}
}
