package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/papertrade/market-sim/internal/model"
)

const (
	marketFile      = "market_state.json"
	portfoliosFile  = "portfolios.json"
	subscribersFile = "subscribers.json"
)

// FileStore persists snapshots as JSON documents in a directory. Writes go
// through a temp file and rename, so a crash mid-save never leaves a
// truncated snapshot behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the snapshot directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) LoadMarket(_ context.Context) ([]model.Instrument, error) {
	var instruments []model.Instrument
	if err := s.readJSON(marketFile, &instruments); err != nil {
		return nil, fmt.Errorf("load market snapshot: %w", err)
	}
	return instruments, nil
}

func (s *FileStore) SaveMarket(_ context.Context, instruments []model.Instrument) error {
	if err := s.writeJSON(marketFile, instruments); err != nil {
		return fmt.Errorf("save market snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) LoadPortfolios(_ context.Context) (map[string]*model.Portfolio, error) {
	portfolios := make(map[string]*model.Portfolio)
	if err := s.readJSON(portfoliosFile, &portfolios); err != nil {
		return nil, fmt.Errorf("load portfolios snapshot: %w", err)
	}
	return portfolios, nil
}

func (s *FileStore) SavePortfolios(_ context.Context, portfolios map[string]*model.Portfolio) error {
	if err := s.writeJSON(portfoliosFile, portfolios); err != nil {
		return fmt.Errorf("save portfolios snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) LoadSubscribers(_ context.Context) (map[string]string, error) {
	subscribers := make(map[string]string)
	if err := s.readJSON(subscribersFile, &subscribers); err != nil {
		return nil, fmt.Errorf("load subscribers snapshot: %w", err)
	}
	return subscribers, nil
}

func (s *FileStore) SaveSubscribers(_ context.Context, subscribers map[string]string) error {
	if err := s.writeJSON(subscribersFile, subscribers); err != nil {
		return fmt.Errorf("save subscribers snapshot: %w", err)
	}
	return nil
}
