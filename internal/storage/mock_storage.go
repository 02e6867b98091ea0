package storage

import (
	"sync"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// MockStorage is an in-memory TradeStore and SettingsStore for tests.
type MockStorage struct {
	mu            sync.Mutex
	trades        []models.Trade
	settings      *models.Settings
	saveError     error
	loadError     error
	saveCallCount int
}

// NewMockStorage creates an empty mock store with default settings.
func NewMockStorage() *MockStorage {
	return &MockStorage{settings: models.DefaultSettings()}
}

// LoadTrades returns deep copies of the stored trades.
func (m *MockStorage) LoadTrades() ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	return cloneTrades(m.trades), nil
}

// SaveTrades replaces the stored set unless a save error is injected.
func (m *MockStorage) SaveTrades(trades []models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.trades = cloneTrades(trades)
	return nil
}

// LoadSettings returns a copy of the stored settings.
func (m *MockStorage) LoadSettings() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	return m.settings.Clone(), nil
}

// SaveSettings replaces the stored settings unless a save error is injected.
func (m *MockStorage) SaveSettings(s *models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.settings = s.Clone()
	return nil
}

// Mock control methods for testing

// SetTrades seeds the trade set.
func (m *MockStorage) SetTrades(trades []models.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = cloneTrades(trades)
}

// SetSettings seeds the settings.
func (m *MockStorage) SetSettings(s *models.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Clone()
}

func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

func (m *MockStorage) GetSaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}

func cloneTrades(in []models.Trade) []models.Trade {
	out := make([]models.Trade, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
