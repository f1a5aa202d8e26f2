package audit

import (
	"sync"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var (
	_ core.Auditor     = (*InMemoryAuditor)(nil)
	_ core.AuditReader = (*InMemoryAuditor)(nil)
)

// DefaultMemoryCapacity is used when NewInMemoryAuditor gets a non-positive capacity.
const DefaultMemoryCapacity = 1000

// InMemoryAuditor keeps the most recent audit entries in memory.
type InMemoryAuditor struct {
	mu       sync.Mutex
	entries  []core.AuditEntry
	capacity int
}

func NewInMemoryAuditor(capacity int) *InMemoryAuditor {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryAuditor{
		entries:  make([]core.AuditEntry, 0),
		capacity: capacity,
	}
}

func (i *InMemoryAuditor) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	if over := len(i.entries) - i.capacity; over > 0 {
		i.entries = append(i.entries[:0:0], i.entries[over:]...)
	}
	return nil
}

func (i *InMemoryAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return tail(i.entries, limit), nil
}

func (i *InMemoryAuditor) Find(filter func(entry core.AuditEntry) bool, limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []core.AuditEntry
	for _, entry := range i.entries {
		if filter(entry) {
			matches = append(matches, entry)
		}
	}
	return tail(matches, limit), nil
}

func (i *InMemoryAuditor) Close() error {
	return nil
}

// tail returns a copy of the last limit entries, or all of them when limit <= 0.
func tail(entries []core.AuditEntry, limit int) []core.AuditEntry {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]core.AuditEntry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}
