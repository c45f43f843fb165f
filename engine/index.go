package engine

import (
	"fmt"
	"sort"
)

// =============================================================================
// INDEX SERIES - Sorted monthly price index
// =============================================================================

// IndexPoint is one monthly observation.
type IndexPoint struct {
	Period Month
	Value  float64
}

// IndexSeries is an immutable monthly series sorted by period. Values are not
// floored: negative or decreasing indices are valid and propagate unchanged.
type IndexSeries struct {
	Kind   IndexKind
	points []IndexPoint
}

// NewIndexSeries sorts the points by period. Duplicate periods are rejected;
// gaps are allowed and handled by the fallback path at lookup time.
func NewIndexSeries(kind IndexKind, points []IndexPoint) (*IndexSeries, error) {
	sorted := make([]IndexPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period.Before(sorted[j].Period)
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Period.Equal(sorted[i-1].Period) {
			return nil, fmt.Errorf("%w: %s has two values for %s", ErrInvalidSeries, kind, sorted[i].Period)
		}
	}
	return &IndexSeries{Kind: kind, points: sorted}, nil
}

// MustIndexSeries is NewIndexSeries for fixtures; it panics on duplicates.
func MustIndexSeries(kind IndexKind, points ...IndexPoint) *IndexSeries {
	s, err := NewIndexSeries(kind, points)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *IndexSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

func (s *IndexSeries) IsEmpty() bool { return s.Len() == 0 }

// Points returns a copy of the observations in period order.
func (s *IndexSeries) Points() []IndexPoint {
	out := make([]IndexPoint, s.Len())
	if s != nil {
		copy(out, s.points)
	}
	return out
}

func (s *IndexSeries) First() (IndexPoint, bool) {
	if s.IsEmpty() {
		return IndexPoint{}, false
	}
	return s.points[0], true
}

func (s *IndexSeries) Last() (IndexPoint, bool) {
	if s.IsEmpty() {
		return IndexPoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// search returns the first position whose period is not before m.
func (s *IndexSeries) search(m Month) int {
	key := m.Ordinal()
	return sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Period.Ordinal() >= key
	})
}

// Lookup returns the value recorded for exactly m.
func (s *IndexSeries) Lookup(m Month) (float64, bool) {
	if s.IsEmpty() {
		return 0, false
	}
	i := s.search(m)
	if i < len(s.points) && s.points[i].Period.Equal(m) {
		return s.points[i].Value, true
	}
	return 0, false
}

// LatestBefore returns the latest point strictly before m.
func (s *IndexSeries) LatestBefore(m Month) (IndexPoint, bool) {
	if s.IsEmpty() {
		return IndexPoint{}, false
	}
	i := s.search(m)
	if i == 0 {
		return IndexPoint{}, false
	}
	return s.points[i-1], true
}

// Deltas returns month-over-month relative changes; Deltas()[i] compares
// point i+1 with point i. A zero denominator yields a zero delta.
func (s *IndexSeries) Deltas() []float64 {
	if s.Len() < 2 {
		return nil
	}
	out := make([]float64, len(s.points)-1)
	for i := 1; i < len(s.points); i++ {
		out[i-1] = ratioDelta(s.points[i].Value, s.points[i-1].Value)
	}
	return out
}

// TrailingGrowth is the last month-over-month change floored at zero. A
// transient drop is read as no growth so it is never compounded forward.
func (s *IndexSeries) TrailingGrowth() float64 {
	if s.Len() < 2 {
		return 0
	}
	n := len(s.points)
	g := ratioDelta(s.points[n-1].Value, s.points[n-2].Value)
	if g < 0 {
		return 0
	}
	return g
}

func ratioDelta(curr, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return curr/prev - 1
}

// =============================================================================
// INDEX SET - The series a correction engine may consult
// =============================================================================

type IndexSet map[IndexKind]*IndexSeries

// NewIndexSet keys the given series by kind.
func NewIndexSet(series ...*IndexSeries) IndexSet {
	set := make(IndexSet, len(series))
	for _, s := range series {
		if s != nil {
			set[s.Kind] = s
		}
	}
	return set
}

// Require returns the series for kind, or a MissingReferenceDataError when it
// is absent or empty.
func (set IndexSet) Require(kind IndexKind, stage string) (*IndexSeries, error) {
	s := set[kind]
	if s.IsEmpty() {
		return nil, &MissingReferenceDataError{Dataset: DatasetIndexSeries(kind), Stage: stage}
	}
	return s, nil
}
