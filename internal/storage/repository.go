package storage

import (
	"fmt"
	"sync"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// Repository is the single process-wide owner of the trade and settings
// artefacts. Writers go through UpdateTrades/UpdateSettings, which hold an
// exclusive lock across load, mutate and save. Readers take no lock and may
// see a slightly stale set.
type Repository struct {
	trades   TradeStore
	settings SettingsStore

	tradesMu   sync.Mutex
	settingsMu sync.Mutex

	changed chan struct{}
}

// NewRepository wires the two stores together.
func NewRepository(trades TradeStore, settings SettingsStore) *Repository {
	return &Repository{
		trades:   trades,
		settings: settings,
		changed:  make(chan struct{}, 1),
	}
}

// Trades returns the current trade set.
func (r *Repository) Trades() ([]models.Trade, error) {
	return r.trades.LoadTrades()
}

// UpdateTrades loads the set, applies fn and saves the result under the
// write lock. When fn returns an error nothing is saved.
func (r *Repository) UpdateTrades(fn func(trades []models.Trade) ([]models.Trade, error)) error {
	r.tradesMu.Lock()
	defer r.tradesMu.Unlock()

	current, err := r.trades.LoadTrades()
	if err != nil {
		return fmt.Errorf("loading trades: %w", err)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := r.trades.SaveTrades(next); err != nil {
		return fmt.Errorf("saving trades: %w", err)
	}
	return nil
}

// Settings returns the current settings merged over defaults.
func (r *Repository) Settings() (*models.Settings, error) {
	return r.settings.LoadSettings()
}

// UpdateSettings applies fn to freshly loaded settings, validates and saves
// them, then posts a change event. The saved settings are returned.
func (r *Repository) UpdateSettings(fn func(s *models.Settings) error) (*models.Settings, error) {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()

	s, err := r.settings.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if err := r.settings.SaveSettings(s); err != nil {
		return nil, fmt.Errorf("saving settings: %w", err)
	}
	r.notifyChanged()
	return s, nil
}

// AppendActivity records an activity entry without posting a change event,
// since the activity log does not affect the job set.
func (r *Repository) AppendActivity(rec models.ActivityRecord) error {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()

	s, err := r.settings.LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	s.AppendActivity(rec)
	if err := r.settings.SaveSettings(s); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// SettingsChanged delivers at most one pending event after any number of
// saves. The scheduler reconciles its jobs on receipt.
func (r *Repository) SettingsChanged() <-chan struct{} {
	return r.changed
}

func (r *Repository) notifyChanged() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
