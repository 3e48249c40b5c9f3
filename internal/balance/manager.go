package balance

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/webclinic017/GDA-v2/internal/gateway"
)

// ExchangeClient interface for getting balance
type ExchangeClient interface {
	FetchBalance(ctx context.Context) (gateway.Balance, error)
}

// Balance represents account balance
type Balance struct {
	Wallet   float64   `json:"wallet"`
	NAV      float64   `json:"nav"`
	LastSync time.Time `json:"last_sync"`
}

// Manager caches the futures account balance between syncs.
type Manager struct {
	exchange ExchangeClient
	now      func() time.Time

	mu    sync.RWMutex
	cache Balance
}

// NewManager creates a new balance manager
func NewManager(exchange ExchangeClient) *Manager {
	return &Manager{exchange: exchange, now: time.Now}
}

// Sync fetches latest balance from exchange
func (m *Manager) Sync(ctx context.Context) (Balance, error) {
	b, err := m.exchange.FetchBalance(ctx)
	if err != nil {
		return Balance{}, err
	}

	m.mu.Lock()
	m.cache = Balance{Wallet: b.Wallet, NAV: b.Margin, LastSync: m.now()}
	snap := m.cache
	m.mu.Unlock()

	log.Printf("💰 Balance synced: Wallet=%.2f, NAV=%.2f", snap.Wallet, snap.NAV)
	return snap, nil
}

// Get returns the cached balance. LastSync is zero before the first sync.
func (m *Manager) Get() Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache
}
