/*
checkpoint.go - Fingerprint-keyed stage cache

PURPOSE:
  Makes the pipeline idempotent and cheap to re-run: a stage whose input
  fingerprint has been seen before returns the stored result without
  recomputing it.

GUARANTEES:
  - At most one computation per (stage, fingerprint) per process lifetime.
  - Errors are not cached; a failed stage is recomputed on the next call.
  - Entries never expire. When inputs change the fingerprint changes, and
    the old entry is simply never matched again.
  - No persistence across processes or restarts.

CONCURRENCY:
  The backing go-cache store is safe for concurrent use, but RunOrFetch does
  not single-flight: two goroutines missing the same key would both compute.
  Callers running the pipeline from more than one goroutine must serialize
  runs per stage name.

STORED VALUES:
  Stages never mutate their input, so a cached Records slice stays valid
  after later stages run on top of it.
*/
package engine

import (
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// CheckpointEntry is one stored stage result.
type CheckpointEntry struct {
	Stage       string
	Fingerprint Fingerprint
	Value       any
	StoredAt    time.Time
}

type Checkpoint struct {
	store  *cache.Cache
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		store: cache.New(cache.NoExpiration, 0),
		now:   time.Now,
	}
}

func checkpointKey(stage string, fp Fingerprint) string {
	return stage + ":" + string(fp)
}

// Entry returns the stored entry for a stage and fingerprint.
func (c *Checkpoint) Entry(stage string, fp Fingerprint) (CheckpointEntry, bool) {
	if c == nil {
		return CheckpointEntry{}, false
	}
	v, ok := c.store.Get(checkpointKey(stage, fp))
	if !ok {
		return CheckpointEntry{}, false
	}
	entry, ok := v.(CheckpointEntry)
	return entry, ok
}

func (c *Checkpoint) put(stage string, fp Fingerprint, value any) {
	c.store.Set(checkpointKey(stage, fp), CheckpointEntry{
		Stage:       stage,
		Fingerprint: fp,
		Value:       value,
		StoredAt:    c.now(),
	}, cache.NoExpiration)
}

// Len is the number of stored entries, stale ones included.
func (c *Checkpoint) Len() int {
	if c == nil {
		return 0
	}
	return c.store.ItemCount()
}

// Stats returns cache hits and misses since creation.
func (c *Checkpoint) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Flush drops every entry.
func (c *Checkpoint) Flush() {
	if c != nil {
		c.store.Flush()
	}
}

// RunOrFetch returns the stored result for (stage, fp), or runs compute and
// stores what it returns. cached reports whether compute was skipped. A nil
// checkpoint always computes.
func RunOrFetch[T any](c *Checkpoint, stage string, fp Fingerprint, compute func() (T, error)) (result T, cached bool, err error) {
	if c == nil {
		result, err = compute()
		return result, false, err
	}
	if entry, ok := c.Entry(stage, fp); ok {
		if v, ok := entry.Value.(T); ok {
			c.hits.Add(1)
			return v, true, nil
		}
	}
	c.misses.Add(1)
	result, err = compute()
	if err != nil {
		return result, false, err
	}
	c.put(stage, fp, result)
	return result, false, nil
}
