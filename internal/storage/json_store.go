package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// JSONTradeStore keeps the trade set in a single JSON array file.
type JSONTradeStore struct {
	path   string
	logger *logrus.Logger
}

// NewJSONTradeStore creates a trade store backed by path. The file is created
// on first save. logger may be nil.
func NewJSONTradeStore(path string, logger *logrus.Logger) *JSONTradeStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &JSONTradeStore{path: path, logger: logger}
}

// Path returns the artefact location.
func (s *JSONTradeStore) Path() string { return s.path }

// LoadTrades reads the artefact. Older files stored an object keyed by trade
// id; those are accepted and returned in id order.
func (s *JSONTradeStore) LoadTrades() ([]models.Trade, error) {
	data, err := readArtefact(s.path)
	if err != nil || data == nil {
		return []models.Trade{}, err
	}

	var trades []models.Trade
	if err := json.Unmarshal(data, &trades); err == nil {
		return trades, nil
	}

	var byID map[string]models.Trade
	if err := json.Unmarshal(data, &byID); err == nil {
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		trades = make([]models.Trade, 0, len(ids))
		for _, id := range ids {
			t := byID[id]
			if t.ID == "" {
				t.ID = id
			}
			trades = append(trades, t)
		}
		return trades, nil
	}

	s.quarantine(data)
	return []models.Trade{}, nil
}

// SaveTrades atomically replaces the artefact.
func (s *JSONTradeStore) SaveTrades(trades []models.Trade) error {
	if trades == nil {
		trades = []models.Trade{}
	}
	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding trades: %v", ErrWriteFailed, err)
	}
	return writeAtomic(s.path, data)
}

func (s *JSONTradeStore) quarantine(data []byte) {
	backup := s.path + ".corrupt"
	entry := s.logger.WithField("path", s.path)
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		entry.WithError(err).Warn("trade store unparseable, starting empty (backup failed)")
		return
	}
	entry.WithField("backup", backup).Warn("trade store unparseable, starting empty")
}

// JSONSettingsStore keeps settings in a single JSON object file.
type JSONSettingsStore struct {
	path   string
	logger *logrus.Logger
}

// NewJSONSettingsStore creates a settings store backed by path. logger may be nil.
func NewJSONSettingsStore(path string, logger *logrus.Logger) *JSONSettingsStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &JSONSettingsStore{path: path, logger: logger}
}

// LoadSettings decodes the artefact over the defaults.
func (s *JSONSettingsStore) LoadSettings() (*models.Settings, error) {
	settings := models.DefaultSettings()
	data, err := readArtefact(s.path)
	if err != nil || data == nil {
		return settings, err
	}
	if err := json.Unmarshal(data, settings); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("settings unparseable, using defaults")
		return models.DefaultSettings(), nil
	}
	return settings, nil
}

// SaveSettings atomically replaces the artefact.
func (s *JSONSettingsStore) SaveSettings(settings *models.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding settings: %v", ErrWriteFailed, err)
	}
	return writeAtomic(s.path, data)
}

// readArtefact returns nil data for a missing or blank file.
func readArtefact(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from process config
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// writeAtomic writes to a temp file in the same directory and renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWriteFailed, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: writing %s: %v", ErrWriteFailed, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: syncing %s: %v", ErrWriteFailed, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: closing %s: %v", ErrWriteFailed, tmpName, err)
	}
	// Atomic rename
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: renaming onto %s: %v", ErrWriteFailed, path, err)
	}
	return nil
}
