package memorystore

import (
	"sort"
	"sync"

	"chartgate/pkg/candle"
)

// PriceStore keeps the most recent captures of every symbol in memory.
type PriceStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolPriceStore
	capacity int
}

type symbolPriceStore struct {
	mu      sync.Mutex
	samples []candle.Sample
}

// NewPriceStore keeps at most capacity samples per symbol; 0 keeps all.
func NewPriceStore(capacity int) *PriceStore {
	return &PriceStore{
		data:     make(map[string]*symbolPriceStore),
		capacity: capacity,
	}
}

func (s *PriceStore) Add(p PriceMemory) {
	s.globalMu.RLock()
	store, ok := s.data[p.Symbol]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if store, ok = s.data[p.Symbol]; !ok {
			store = &symbolPriceStore{}
			s.data[p.Symbol] = store
		}
		s.globalMu.Unlock()
	}

	store.mu.Lock()
	store.samples = append(store.samples, p.Sample)
	if s.capacity > 0 && len(store.samples) > s.capacity {
		store.samples = append(store.samples[:0:0], store.samples[len(store.samples)-s.capacity:]...)
	}
	store.mu.Unlock()
}

func (s *PriceStore) GetBySymbol(symbol string) []candle.Sample {
	s.globalMu.RLock()
	store, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return nil
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	cp := make([]candle.Sample, len(store.samples))
	copy(cp, store.samples)
	return cp
}

// Latest returns the newest capture of every symbol, ordered by symbol.
func (s *PriceStore) Latest() []PriceMemory {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]PriceMemory, 0, len(s.data))
	for sym, store := range s.data {
		store.mu.Lock()
		if n := len(store.samples); n > 0 {
			out = append(out, PriceMemory{Symbol: sym, Sample: store.samples[n-1]})
		}
		store.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *PriceStore) Symbols() []string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]string, 0, len(s.data))
	for sym := range s.data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// CountAll returns the total number of samples held across all symbols.
func (s *PriceStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, store := range s.data {
		store.mu.Lock()
		total += len(store.samples)
		store.mu.Unlock()
	}
	return total
}
