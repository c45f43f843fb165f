package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/receivables-engine/engine"
)

func sampleRecords(n int) engine.Records {
	rs := make(engine.Records, n)
	for i := range rs {
		rs[i] = receivable(i+1, "100", day(2023, time.January, 1), day(2024, time.June, 30))
	}
	return rs
}

func TestFingerprint_Stable(t *testing.T) {
	// GIVEN: The same table and params fingerprinted twice
	// WHEN: Summing
	// THEN: Identical fingerprints; key order of params is irrelevant

	rs := sampleRecords(20)
	a := engine.NewFingerprinter().Table("records", rs).Params(map[string]any{"a": 1, "b": "x"}).Sum()
	b := engine.NewFingerprinter().Table("records", rs.Clone()).Params(map[string]any{"b": "x", "a": 1}).Sum()

	assert.Equal(t, a, b)
	assert.Len(t, string(a), 16)
}

func TestFingerprint_ChangesWithParamsAndSum(t *testing.T) {
	rs := sampleRecords(20)
	base := engine.NewFingerprinter().Table("records", rs).Params(map[string]any{"rate": 0.01}).Sum()

	other := engine.NewFingerprinter().Table("records", rs).Params(map[string]any{"rate": 0.02}).Sum()
	assert.NotEqual(t, base, other)

	// a middle row is not sampled but still moves the numeric sum
	changed := rs.Clone()
	changed[10].Principal = dec("101")
	moved := engine.NewFingerprinter().Table("records", changed).Params(map[string]any{"rate": 0.01}).Sum()
	assert.NotEqual(t, base, moved)
}

func TestRunOrFetch_CachesByStageAndFingerprint(t *testing.T) {
	// GIVEN: A checkpoint and a counting computation
	// WHEN: Running the same stage twice with the same fingerprint
	// THEN: The second call is served from cache

	cp := engine.NewCheckpoint()
	calls := 0
	compute := func() (int, error) { calls++; return 42, nil }

	v, cached, err := engine.RunOrFetch(cp, "aging", "fp1", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 42, v)

	v, cached, err = engine.RunOrFetch(cp, "aging", "fp1", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	_, cached, _ = engine.RunOrFetch(cp, "discount", "fp1", compute)
	assert.False(t, cached, "stages do not share entries")

	hits, misses := cp.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 2, cp.Len())

	entry, ok := cp.Entry("aging", "fp1")
	require.True(t, ok)
	assert.Equal(t, engine.Fingerprint("fp1"), entry.Fingerprint)
}

func TestRunOrFetch_ErrorsAreNotStored(t *testing.T) {
	cp := engine.NewCheckpoint()
	boom := errors.New("boom")

	_, _, err := engine.RunOrFetch(cp, "aging", "fp", func() (int, error) { return 0, boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cp.Len())
}

func TestRunOrFetch_NilCheckpointAlwaysComputes(t *testing.T) {
	calls := 0
	for i := 0; i < 3; i++ {
		_, cached, err := engine.RunOrFetch(nil, "aging", "fp", func() (string, error) { calls++; return "x", nil })
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, 3, calls)
}

func TestCheckpoint_Flush(t *testing.T) {
	cp := engine.NewCheckpoint()
	_, _, _ = engine.RunOrFetch(cp, "aging", "fp", func() (int, error) { return 1, nil })

	cp.Flush()

	assert.Equal(t, 0, cp.Len())
}
