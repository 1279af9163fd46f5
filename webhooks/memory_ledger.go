package webhooks

import (
	"context"
	"sync"
)

// MemoryEventLedger keeps seen dedup keys in process. Suitable for a single
// instance and for tests; multi-instance deployments use the SQL ledger.
type MemoryEventLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryEventLedger() *MemoryEventLedger {
	return &MemoryEventLedger{seen: map[string]struct{}{}}
}

func (l *MemoryEventLedger) Reserve(_ context.Context, event StatusEvent) (bool, error) {
	key := event.DedupKey()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[key]; ok {
		return true, nil
	}
	l.seen[key] = struct{}{}
	return false, nil
}

var _ EventLedger = (*MemoryEventLedger)(nil)
