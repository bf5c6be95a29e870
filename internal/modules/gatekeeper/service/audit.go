package service

import (
	"sync"
	"time"
)

const auditCapPerAccount = 512

// Audit — ограниченная память отказов на аккаунт. Первоклассное
// требование: "почему не было сделок" должно быть отвечаемо всегда.
type Audit struct {
	mu      sync.RWMutex
	cap     int
	records map[string][]auditRecord
}

type auditRecord struct {
	At     time.Time
	InstID string
	Reason string
}

func NewAudit(capPerAccount int) *Audit {
	if capPerAccount <= 0 {
		capPerAccount = auditCapPerAccount
	}
	return &Audit{cap: capPerAccount, records: make(map[string][]auditRecord)}
}

func (a *Audit) Record(accountID, instID, reason string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recs := append(a.records[accountID], auditRecord{At: at, InstID: instID, Reason: reason})
	if len(recs) > a.cap {
		recs = recs[len(recs)-a.cap:]
	}
	a.records[accountID] = recs
}

// Counts — счётчики причин отказов за окно от now.
func (a *Audit) Counts(accountID string, window time.Duration, now time.Time) map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cutoff := now.Add(-window)
	out := make(map[string]int)
	for _, r := range a.records[accountID] {
		if r.At.Before(cutoff) {
			continue
		}
		out[r.Reason]++
	}
	return out
}
