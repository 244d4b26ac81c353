package server

import (
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"campusfi/native/amm"
	"campusfi/native/lending"
	"campusfi/native/tranche"
)

// Each resource has its own mutex so mutations of one pool never wait on
// another. The registry lock only guards map membership.

type ammEntry struct {
	mu   sync.Mutex
	pool amm.ReservePool
}

func (e *ammEntry) snapshot() amm.ReservePool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Clone()
}

type lendingState struct {
	Pool      lending.Pool                `json:"pool"`
	Positions map[string]lending.Position `json:"positions"`
}

func (s lendingState) clone() lendingState {
	out := lendingState{Pool: s.Pool.Clone(), Positions: make(map[string]lending.Position, len(s.Positions))}
	for id, p := range s.Positions {
		out.Positions[id] = p.Clone()
	}
	return out
}

type lendingEntry struct {
	mu    sync.Mutex
	state lendingState
}

func (e *lendingEntry) snapshot() lendingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

type seriesState struct {
	Receivables tranche.ReceivablesPool `json:"receivables"`
	Stack       tranche.Stack           `json:"stack"`
}

func (s seriesState) clone() seriesState {
	return seriesState{Receivables: s.Receivables.Clone(), Stack: s.Stack.Clone()}
}

type seriesEntry struct {
	mu    sync.Mutex
	state seriesState
}

func (e *seriesEntry) snapshot() seriesState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

type registry struct {
	mu      sync.RWMutex
	amm     map[string]*ammEntry
	lending map[string]*lendingEntry
	series  map[string]*seriesEntry
}

func newRegistry() *registry {
	return &registry{
		amm:     make(map[string]*ammEntry),
		lending: make(map[string]*lendingEntry),
		series:  make(map[string]*seriesEntry),
	}
}

func (r *registry) ammPool(id string) (*ammEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.amm[id]
	return e, ok
}

func (r *registry) lendingPool(id string) (*lendingEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.lending[id]
	return e, ok
}

func (r *registry) seriesByID(id string) (*seriesEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.series[id]
	return e, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *registry) ammIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.amm)
}

func (r *registry) lendingIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.lending)
}

func (r *registry) seriesIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.series)
}

// ammRecord is the persisted form of a reserve pool. Amounts are raw base-unit
// integers.
type ammRecord struct {
	ID            string `json:"id"`
	ReserveA      string `json:"reserveA"`
	ReserveB      string `json:"reserveB"`
	TotalLPSupply string `json:"totalLpSupply"`
}

func ammRecordOf(p amm.ReservePool) ammRecord {
	p = p.Clone()
	return ammRecord{ID: p.ID, ReserveA: p.ReserveA.Dec(), ReserveB: p.ReserveB.Dec(), TotalLPSupply: p.TotalLPSupply.Dec()}
}

func (r ammRecord) pool() (amm.ReservePool, error) {
	pool := amm.ReservePool{ID: r.ID}
	var err error
	if pool.ReserveA, err = uint256.FromDecimal(r.ReserveA); err != nil {
		return amm.ReservePool{}, fmt.Errorf("reserve a: %w", err)
	}
	if pool.ReserveB, err = uint256.FromDecimal(r.ReserveB); err != nil {
		return amm.ReservePool{}, fmt.Errorf("reserve b: %w", err)
	}
	if pool.TotalLPSupply, err = uint256.FromDecimal(r.TotalLPSupply); err != nil {
		return amm.ReservePool{}, fmt.Errorf("lp supply: %w", err)
	}
	return pool, nil
}
