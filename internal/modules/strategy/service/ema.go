package service

type emaState struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) Update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *emaState) Ready() bool    { return e.warmup >= e.period }
func (e *emaState) Value() float64 { return e.value }

type rsiState struct {
	period      int
	prev        float64
	avgGain     float64
	avgLoss     float64
	warmup      int
	initialized bool
}

func newRSI(period int) rsiState {
	if period <= 1 {
		period = 2
	}
	return rsiState{period: period}
}

func (r *rsiState) Update(price float64) {
	if !r.initialized {
		r.prev = price
		r.initialized = true
		return
	}
	change := price - r.prev
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	alpha := 1.0 / float64(r.period)
	if r.avgGain == 0 && r.avgLoss == 0 {
		r.avgGain, r.avgLoss = gain, loss
	} else {
		r.avgGain = (1-alpha)*r.avgGain + alpha*gain
		r.avgLoss = (1-alpha)*r.avgLoss + alpha*loss
	}
	r.prev = price
	if r.warmup < r.period {
		r.warmup++
	}
}

func (r *rsiState) Ready() bool { return r.warmup >= r.period }

func (r *rsiState) Value() float64 {
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100 // только росты
	}
	rs := r.avgGain / r.avgLoss
	return 100 - (100 / (1 + rs))
}
