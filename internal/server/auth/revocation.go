package auth

import (
	"sync"
	"time"
)

// Ledger is the process-local record of tokens revoked before their natural
// expiry. Entries evict themselves once the token would have expired anyway,
// so the ledger holds at most the revocations of one TTL window.
//
// A Ledger is bound to one token class through expiryOf, which must only
// succeed for correctly signed tokens.
type Ledger struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	expiryOf func(token string) (time.Time, bool)
	now      func() time.Time
}

func NewLedger(expiryOf func(token string) (time.Time, bool), now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		entries:  make(map[string]time.Time),
		expiryOf: expiryOf,
		now:      now,
	}
}

// Revoke records token until its expiry. Tokens that cannot be decoded or
// are already expired are not stored: they can never validate. It reports
// whether an entry was stored.
func (l *Ledger) Revoke(token string) bool {
	expiresAt, ok := l.expiryOf(token)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if !ok || !expiresAt.After(now) {
		return false
	}
	l.entries[token] = expiresAt
	return true
}

// IsRevoked reports whether token is in the ledger.
func (l *Ledger) IsRevoked(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	_, ok := l.entries[token]
	return ok
}

// Len returns the number of retained entries after pruning.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	return len(l.entries)
}

func (l *Ledger) pruneLocked(now time.Time) {
	for token, expiresAt := range l.entries {
		if !expiresAt.After(now) {
			delete(l.entries, token)
		}
	}
}
