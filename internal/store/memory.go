package store

import (
	"context"
	"sync"

	"github.com/papertrade/market-sim/internal/model"
)

// MemoryStore implements Store with in-memory copies. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.Mutex
	instruments []model.Instrument
	portfolios  map[string]*model.Portfolio
	subscribers map[string]string
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadMarket(_ context.Context) ([]model.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Instrument, len(s.instruments))
	for i, inst := range s.instruments {
		out[i] = inst.Clone()
	}
	return out, nil
}

func (s *MemoryStore) SaveMarket(_ context.Context, instruments []model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instruments = make([]model.Instrument, len(instruments))
	for i, inst := range instruments {
		s.instruments[i] = inst.Clone()
	}
	return nil
}

func (s *MemoryStore) LoadPortfolios(_ context.Context) (map[string]*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*model.Portfolio, len(s.portfolios))
	for id, pf := range s.portfolios {
		out[id] = pf.Clone()
	}
	return out, nil
}

func (s *MemoryStore) SavePortfolios(_ context.Context, portfolios map[string]*model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolios = make(map[string]*model.Portfolio, len(portfolios))
	for id, pf := range portfolios {
		s.portfolios[id] = pf.Clone()
	}
	return nil
}

func (s *MemoryStore) LoadSubscribers(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.subscribers))
	for id, url := range s.subscribers {
		out[id] = url
	}
	return out, nil
}

func (s *MemoryStore) SaveSubscribers(_ context.Context, subscribers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[string]string, len(subscribers))
	for id, url := range subscribers {
		s.subscribers[id] = url
	}
	return nil
}
