// Package store provides ReferenceSource implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory reference data (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	series   map[engine.IndexKind]*engine.IndexSeries
	recovery *engine.RecoveryTable
	terms    *engine.TermStructure
}

func NewMemory() *Memory {
	return &Memory{series: make(map[engine.IndexKind]*engine.IndexSeries)}
}

func (m *Memory) PutIndexSeries(s *engine.IndexSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[s.Kind] = s
}

func (m *Memory) PutRecoveryTable(t *engine.RecoveryTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovery = t
}

func (m *Memory) PutTermStructure(ts *engine.TermStructure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = ts
}

func (m *Memory) IndexSeries(_ context.Context, kind engine.IndexKind) (*engine.IndexSeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.series[kind]
	if s.IsEmpty() {
		return nil, &engine.MissingReferenceDataError{Dataset: engine.DatasetIndexSeries(kind)}
	}
	return s, nil
}

func (m *Memory) RecoveryTable(_ context.Context) (*engine.RecoveryTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.recovery.Len() == 0 {
		return nil, &engine.MissingReferenceDataError{Dataset: engine.DatasetRecoveryTable}
	}
	return m.recovery, nil
}

func (m *Memory) TermStructure(_ context.Context) (*engine.TermStructure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.terms.Len() == 0 {
		return nil, &engine.MissingReferenceDataError{Dataset: engine.DatasetTermStructure}
	}
	return m.terms, nil
}

var _ engine.ReferenceSource = (*Memory)(nil)
