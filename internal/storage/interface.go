// Package storage persists trades and settings as JSON artefacts.
package storage

import (
	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// TradeStore is a durable set of trades replaced as a whole on every save.
//
// LoadTrades returns an empty set for a missing or unparseable artefact.
// SaveTrades replaces the artefact atomically and wraps ErrWriteFailed on failure.
type TradeStore interface {
	LoadTrades() ([]models.Trade, error)
	SaveTrades(trades []models.Trade) error
}

// SettingsStore is the durable settings mapping. LoadSettings merges what is
// stored over models.DefaultSettings.
type SettingsStore interface {
	LoadSettings() (*models.Settings, error)
	SaveSettings(s *models.Settings) error
}

// Ensure the implementations satisfy the interfaces
var (
	_ TradeStore    = (*JSONTradeStore)(nil)
	_ SettingsStore = (*JSONSettingsStore)(nil)
	_ TradeStore    = (*MockStorage)(nil)
	_ SettingsStore = (*MockStorage)(nil)
)
