package state

import (
	"sort"
	"sync"
	"time"

	"github.com/webclinic017/GDA-v2/internal/ledger"
)

// Manager keeps an in-memory copy of the last saved ledger for readers that
// must not touch the ledger file while a cycle is running.
type Manager struct {
	mu        sync.RWMutex
	records   map[string]ledger.Record
	updatedAt time.Time
}

func NewManager() *Manager {
	return &Manager{records: make(map[string]ledger.Record)}
}

// Set replaces the snapshot with the records of l.
func (m *Manager) Set(l *ledger.Ledger, at time.Time) {
	records := make(map[string]ledger.Record, l.Len())
	for _, sym := range l.Symbols() {
		records[sym] = *l.Get(sym)
	}
	m.mu.Lock()
	m.records = records
	m.updatedAt = at
	m.mu.Unlock()
}

// Record returns the snapshot for a symbol.
func (m *Manager) Record(symbol string) (ledger.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[symbol]
	return r, ok
}

// Records returns every record, sorted by symbol.
func (m *Manager) Records() []ledger.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]ledger.Record, 0, len(m.records))
	for _, r := range m.records {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

// UpdatedAt is when the snapshot was last replaced.
func (m *Manager) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updatedAt
}
