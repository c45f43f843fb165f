/*
store.go - Reference data source interface

PURPOSE:
  The engine never reads files or databases. Upstream collaborators supply
  index series, the recovery table and the term structure through
  ReferenceSource; the pipeline receives them already loaded in Input.

IMPLEMENTATIONS:
  - engine/store/memory.go: in-memory source for tests and seeding
  - store/sqlite/sqlite.go: SQLite-backed source used by the CLI

A source returns MissingReferenceDataError when it has nothing for a
dataset, so a CLI run fails with the dataset's name before any stage runs.
*/
package engine

import (
	"context"
	"fmt"
)

type ReferenceSource interface {
	IndexSeries(ctx context.Context, kind IndexKind) (*IndexSeries, error)
	RecoveryTable(ctx context.Context) (*RecoveryTable, error)
	TermStructure(ctx context.Context) (*TermStructure, error)
}

// References bundles the loaded reference datasets of a run.
type References struct {
	Indexes  IndexSet
	Recovery *RecoveryTable
	Terms    *TermStructure
}

// LoadReferences reads every dataset a run needs from src.
func LoadReferences(ctx context.Context, src ReferenceSource, kinds ...IndexKind) (References, error) {
	refs := References{Indexes: make(IndexSet, len(kinds))}
	for _, kind := range kinds {
		s, err := src.IndexSeries(ctx, kind)
		if err != nil {
			return References{}, fmt.Errorf("load %s: %w", DatasetIndexSeries(kind), err)
		}
		refs.Indexes[kind] = s
	}

	var err error
	if refs.Recovery, err = src.RecoveryTable(ctx); err != nil {
		return References{}, fmt.Errorf("load %s: %w", DatasetRecoveryTable, err)
	}
	if refs.Terms, err = src.TermStructure(ctx); err != nil {
		return References{}, fmt.Errorf("load %s: %w", DatasetTermStructure, err)
	}
	return refs, nil
}

// Input combines loaded references with a portfolio's records.
func (r References) Input(portfolioID string, variant Variant, records Records) Input {
	return Input{
		PortfolioID: portfolioID,
		Variant:     variant,
		Records:     records,
		Indexes:     r.Indexes,
		Recovery:    r.Recovery,
		Terms:       r.Terms,
	}
}
