package service

import (
	"fmt"
	"sort"
	"sync"

	"scan_bot/internal/models"
)

type DonchianConfig struct {
	Period    int // окно канала, N наблюдений
	TrendEMA  int // EMA-фильтр тренда
	StopPips  float64
	TargetRRs []float64
}

func (c *DonchianConfig) defaults() {
	if c.Period <= 0 {
		c.Period = 20
	}
	if c.TrendEMA <= 0 {
		c.TrendEMA = 50
	}
	if c.StopPips <= 0 {
		c.StopPips = 25
	}
	if len(c.TargetRRs) == 0 {
		c.TargetRRs = []float64{1, 2, 3}
	}
}

// Donchian — пробой канала N последних mid-цен с EMA-фильтром тренда.
type Donchian struct {
	cfg DonchianConfig

	mu sync.Mutex
	st map[string]*donchianState
}

type donchianState struct {
	window []float64 // последние mid, len <= Period
	trend  emaState
}

func NewDonchian(cfg DonchianConfig) *Donchian {
	cfg.defaults()
	return &Donchian{cfg: cfg, st: make(map[string]*donchianState)}
}

func (s *Donchian) Name() models.StrategyType { return models.StrategyDonchian }

func (s *Donchian) Evaluate(snapshot map[string]models.Quote) []models.CandidateSignal {
	s.mu.Lock()
	defer s.mu.Unlock()

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
			st = &donchianState{
				window: make([]float64, 0, s.cfg.Period),
				trend:  newEMA(s.cfg.TrendEMA),
			}
			s.st[instID] = st
		}

		mid := q.Mid()

		// сначала решение по уже накопленному каналу, потом обновление,
		// иначе текущая цена всегда "внутри" и пробоя не бывает
		var side models.Side
		if len(st.window) >= s.cfg.Period && st.trend.Ready() {
			hi, lo := st.window[0], st.window[0]
			for _, v := range st.window {
				if v > hi {
					hi = v
				}
				if v < lo {
					lo = v
				}
			}
			switch {
			case mid > hi && mid > st.trend.Value():
				side = models.SideBuy
			case mid < lo && mid < st.trend.Value():
				side = models.SideSell
			}
		}

		st.window = append(st.window, mid)
		if len(st.window) > s.cfg.Period {
			st.window = st.window[1:]
		}
		st.trend.Update(mid)

		if side == models.SideNone {
			continue
		}
		out = append(out, s.candidate(instID, side, q))
	}
	return out
}

func (s *Donchian) candidate(instID string, side models.Side, q models.Quote) models.CandidateSignal {
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

	return models.CandidateSignal{
		InstID:     instID,
		Side:       side,
		Entry:      entry,
		Stop:       stop,
		Targets:    targets,
		Confidence: 0.6,
		Strategy:   models.StrategyDonchian,
		Reason:     fmt.Sprintf("donchian%d breakout, trend ema%d", s.cfg.Period, s.cfg.TrendEMA),
	}
}
