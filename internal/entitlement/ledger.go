package entitlement

import (
	"sort"
	"sync"
	"time"
)

// PremiumWindow is how long a premium grant stays valid. A repeated grant
// restarts the window from the latest grant time; windows never accumulate.
const PremiumWindow = 30 * 24 * time.Hour

// freeUseLimit is the number of summaries a user gets before payment.
const freeUseLimit = 1

type record struct {
	freeUses     int
	premiumUntil time.Time // zero value means no grant
}

// Entry is one row of the administrative usage report.
type Entry struct {
	UserID   int64
	FreeUses int
	Paid     bool
}

// Ledger is the in-memory source of truth for who may submit a document.
// It tracks consumed free uses and premium expiry per user and lives for the
// lifetime of the process. All methods are safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	records map[int64]*record
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[int64]*record),
	}
}

// IsEntitled reports whether a submission by userID may be admitted at now:
// true while a premium grant is active, otherwise true until the free use is
// spent. It performs no accounting; callers record consumption separately.
func (l *Ledger) IsEntitled(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[userID]
	if !ok {
		return true
	}
	if l.premiumActive(rec, now) {
		return true
	}
	return rec.freeUses < freeUseLimit
}

// HasPremium reports whether userID holds a non-expired premium grant at now.
// The admission flow uses this to decide whether a completed request consumes
// the free use.
func (l *Ledger) HasPremium(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[userID]
	if !ok {
		return false
	}
	return l.premiumActive(rec, now)
}

// GrantPremium sets the user's premium expiry to exactly now plus
// PremiumWindow, overwriting any earlier grant.
func (l *Ledger) GrantPremium(userID int64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensure(userID).premiumUntil = now.Add(PremiumWindow)
}

// RecordFreeUse counts one consumed free summary. Callers must invoke it only
// after a request admitted through the free tier has completed delivery; the
// ledger does not guard against misuse.
func (l *Ledger) RecordFreeUse(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensure(userID).freeUses++
}

// Snapshot returns the usage report ordered by user ID. An expired premium
// grant reports as unpaid.
func (l *Ledger) Snapshot(now time.Time) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, 0, len(l.records))
	for id, rec := range l.records {
		entries = append(entries, Entry{
			UserID:   id,
			FreeUses: rec.freeUses,
			Paid:     l.premiumActive(rec, now),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// premiumActive evaluates a grant and lazily clears it once expired. There is
// no background sweep; expiry is observed on the next evaluation. Must be
// called with l.mu held.
func (l *Ledger) premiumActive(rec *record, now time.Time) bool {
	if rec.premiumUntil.IsZero() {
		return false
	}
	if rec.premiumUntil.Before(now) {
		rec.premiumUntil = time.Time{}
		return false
	}
	return true
}

func (l *Ledger) ensure(userID int64) *record {
	rec, ok := l.records[userID]
	if !ok {
		rec = &record{}
		l.records[userID] = rec
	}
	return rec
}
