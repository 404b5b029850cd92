package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAssignsMonotonicVersions(t *testing.T) {
	s := New()

	require.Equal(t, uint64(1), s.Write("k1", "a"))
	require.Equal(t, uint64(2), s.Write("k1", "b"))
	require.Equal(t, uint64(3), s.Write("k1", "c"))

	// Versions are per key, not global.
	require.Equal(t, uint64(1), s.Write("k2", "x"))

	e, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "c", e.Value)
	assert.Equal(t, uint64(3), e.Version)
}

func TestGetMissingKey(t *testing.T) {
	s := New()

	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestApplyRejectsStaleVersions(t *testing.T) {
	s := New()

	require.True(t, s.Apply("k", "v2", 2))

	// Equal and lower versions are stale.
	assert.False(t, s.Apply("k", "v2-again", 2))
	assert.False(t, s.Apply("k", "v1", 1))

	e, _ := s.Get("k")
	assert.Equal(t, "v2", e.Value)
	assert.Equal(t, uint64(2), e.Version)

	// Strictly newer wins.
	require.True(t, s.Apply("k", "v5", 5))
	e, _ = s.Get("k")
	assert.Equal(t, uint64(5), e.Version)
}

func TestApplyOutOfOrderDelivery(t *testing.T) {
	s := New()

	require.True(t, s.Apply("k", "new", 7))
	require.False(t, s.Apply("k", "old", 3))

	e, _ := s.Get("k")
	assert.Equal(t, "new", e.Value)
}

func TestInstallReplacesState(t *testing.T) {
	s := New()
	s.Write("stale", "gone")

	n := s.Install(
		map[string]string{"a": "1", "b": "2"},
		map[string]uint64{"a": 4, "b": 9},
	)
	require.Equal(t, 2, n)

	_, ok := s.Get("stale")
	assert.False(t, ok, "install replaces wholesale, old keys must vanish")

	e, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", e.Value)
	assert.Equal(t, uint64(9), e.Version)
}

func TestInstallIsIdempotent(t *testing.T) {
	s := New()
	data := map[string]string{"x": "hello"}
	versions := map[string]uint64{"x": 3}

	s.Install(data, versions)
	first := s.Dump()

	s.Install(data, versions)
	assert.Equal(t, first, s.Dump())
}

func TestSnapshotInstallRoundTrip(t *testing.T) {
	leader := New()
	leader.Write("k1", "v1")
	leader.Write("k2", "v2")
	leader.Write("k2", "v2b")

	data, versions := leader.Snapshot()

	follower := New()
	follower.Install(data, versions)

	assert.Equal(t, leader.Dump(), follower.Dump())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Write("k", "v")

	data, versions := s.Snapshot()
	data["k"] = "mutated"
	versions["k"] = 99

	e, _ := s.Get("k")
	assert.Equal(t, "v", e.Value)
	assert.Equal(t, uint64(1), e.Version)
}

func TestConcurrentWritesStayMonotonic(t *testing.T) {
	s := New()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				s.Write("hot", fmt.Sprintf("w%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	e, ok := s.Get("hot")
	require.True(t, ok)
	assert.Equal(t, uint64(writers*perWriter), e.Version)
	assert.Equal(t, 1, s.Len())
}
