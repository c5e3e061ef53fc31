package index

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-ev-atlas/pkg/geo"
)

func TestBuildAndLen(t *testing.T) {
	ix := New()
	assert.Equal(t, 0, ix.Len())

	ix.Build(randomEntries(500, 1))
	assert.Equal(t, 500, ix.Len())

	// Build replaces, never appends.
	ix.Build(randomEntries(10, 2))
	assert.Equal(t, 10, ix.Len())
}

func TestInsertReplacesSameID(t *testing.T) {
	ix := New()
	ix.Insert("a", geo.PlanarPoint{X: 0, Y: 0})
	ix.Insert("a", geo.PlanarPoint{X: 100, Y: 100})

	assert.Equal(t, 1, ix.Len())
	assert.False(t, ix.Contains("a", geo.PlanarPoint{X: 0, Y: 0}))
	assert.True(t, ix.Contains("a", geo.PlanarPoint{X: 100, Y: 100}))

	neighbors := ix.NearestK(geo.PlanarPoint{X: 100, Y: 100}, 1, nil)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "a", neighbors[0].ID)
	assert.Equal(t, 0.0, neighbors[0].Distance)
}

func TestRemove(t *testing.T) {
	ix := New()
	ix.Insert("a", geo.PlanarPoint{X: 1, Y: 1})
	ix.Insert("b", geo.PlanarPoint{X: 2, Y: 2})

	assert.True(t, ix.Remove("a"))
	assert.False(t, ix.Remove("a"), "second remove must report absence")
	assert.Equal(t, 1, ix.Len())

	neighbors := ix.NearestK(geo.PlanarPoint{X: 1, Y: 1}, 5, nil)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "b", neighbors[0].ID)
}

func TestNearestKEmpty(t *testing.T) {
	ix := New()
	assert.Empty(t, ix.NearestK(geo.PlanarPoint{}, 3, nil), "empty index yields an empty result, not an error")

	ix.Insert("a", geo.PlanarPoint{X: 1, Y: 1})
	none := ix.NearestK(geo.PlanarPoint{}, 3, func(string) bool { return false })
	assert.Empty(t, none, "unsatisfiable predicate yields an empty result")

	assert.Empty(t, ix.NearestK(geo.PlanarPoint{}, 0, nil))
}

func TestNearestKOrdering(t *testing.T) {
	ix := New()
	ix.Insert("far", geo.PlanarPoint{X: 100, Y: 0})
	ix.Insert("near", geo.PlanarPoint{X: 1, Y: 0})
	ix.Insert("mid", geo.PlanarPoint{X: 10, Y: 0})

	neighbors := ix.NearestK(geo.PlanarPoint{}, 3, nil)
	require.Len(t, neighbors, 3)
	assert.Equal(t, "near", neighbors[0].ID)
	assert.Equal(t, "mid", neighbors[1].ID)
	assert.Equal(t, "far", neighbors[2].ID)
	assert.Equal(t, 1.0, neighbors[0].Distance)
}

func TestNearestKTieBreakByID(t *testing.T) {
	ix := New()
	// Symmetric around the query point: identical distances.
	ix.Insert("b", geo.PlanarPoint{X: 50, Y: 0})
	ix.Insert("a", geo.PlanarPoint{X: -50, Y: 0})

	neighbors := ix.NearestK(geo.PlanarPoint{}, 2, nil)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "a", neighbors[0].ID)
	assert.Equal(t, "b", neighbors[1].ID)
}

func TestNearestKTieBreakAtBoundary(t *testing.T) {
	// More equidistant points than k: the k slots themselves must go to the
	// lowest ids, whatever order the points entered the tree.
	points := map[string]geo.PlanarPoint{
		"a": {X: 10, Y: 0},
		"b": {X: -10, Y: 0},
		"c": {X: 0, Y: 10},
		"d": {X: 0, Y: -10},
	}
	orders := [][]string{
		{"a", "b", "c", "d"},
		{"d", "c", "b", "a"},
		{"c", "b", "a", "d"},
		{"b", "d", "a", "c"},
	}

	for _, order := range orders {
		ix := New()
		for _, id := range order {
			ix.Insert(id, points[id])
		}

		neighbors := ix.NearestK(geo.PlanarPoint{}, 2, nil)
		require.Len(t, neighbors, 2, "insert order %v", order)
		assert.Equal(t, "a", neighbors[0].ID, "insert order %v", order)
		assert.Equal(t, "b", neighbors[1].ID, "insert order %v", order)
		assert.Equal(t, 10.0, neighbors[0].Distance)
		assert.Equal(t, 10.0, neighbors[1].Distance)
	}
}

func TestNearestKTieBreakAtBoundaryWithPredicate(t *testing.T) {
	ix := New()
	ix.Insert("skip", geo.PlanarPoint{X: 10, Y: 0})
	ix.Insert("d", geo.PlanarPoint{X: -10, Y: 0})
	ix.Insert("c", geo.PlanarPoint{X: 0, Y: 10})
	ix.Insert("b", geo.PlanarPoint{X: 0, Y: -10})

	pred := func(id string) bool { return id != "skip" }
	neighbors := ix.NearestK(geo.PlanarPoint{}, 2, pred)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "b", neighbors[0].ID)
	assert.Equal(t, "c", neighbors[1].ID)
}

func TestNearestKMatchesBruteForce(t *testing.T) {
	entries := randomEntries(2000, 7)
	ix := New()
	ix.Build(entries)

	pred := func(id string) bool { return id[len(id)-1]%2 == 0 }
	r := rand.New(rand.NewSource(99))

	for trial := 0; trial < 25; trial++ {
		q := geo.PlanarPoint{X: r.Float64() * 1e6, Y: r.Float64() * 1e6}
		for _, k := range []int{1, 5, 20} {
			for _, p := range []func(string) bool{nil, pred} {
				got := ix.NearestK(q, k, p)
				want := bruteForceNearest(entries, q, k, p)
				require.Equal(t, want, got, "trial %d k=%d", trial, k)
			}
		}
	}
}

func TestRange(t *testing.T) {
	ix := New()
	ix.Insert("inside", geo.PlanarPoint{X: 5, Y: 5})
	ix.Insert("edge", geo.PlanarPoint{X: 10, Y: 10})
	ix.Insert("outside", geo.PlanarPoint{X: 10.5, Y: 10.5})
	ix.Insert("far", geo.PlanarPoint{X: 1000, Y: 1000})

	ids, err := ix.Range(geo.PlanarPoint{X: 0, Y: 0}, geo.PlanarPoint{X: 10, Y: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"edge", "inside"}, ids, "boundary is inclusive, near-misses excluded")
}

func TestRangeInvalid(t *testing.T) {
	ix := New()
	_, err := ix.Range(geo.PlanarPoint{X: 10, Y: 10}, geo.PlanarPoint{X: 0, Y: 0})
	assert.Error(t, err)
}

func TestConcurrentQueries(t *testing.T) {
	ix := New()
	ix.Build(randomEntries(5000, 3))

	done := make(chan bool, 60)
	for i := 0; i < 60; i++ {
		go func(n int) {
			defer func() { done <- true }()
			r := rand.New(rand.NewSource(int64(n)))
			q := geo.PlanarPoint{X: r.Float64() * 1e6, Y: r.Float64() * 1e6}
			switch n % 3 {
			case 0:
				assert.NotNil(t, ix.NearestK(q, 10, nil))
			case 1:
				_, err := ix.Range(q, geo.PlanarPoint{X: q.X + 1e4, Y: q.Y + 1e4})
				assert.NoError(t, err)
			default:
				ix.Insert(fmt.Sprintf("w_%d", n), q)
			}
		}(i)
	}
	for i := 0; i < 60; i++ {
		<-done
	}
}

func bruteForceNearest(entries []Entry, q geo.PlanarPoint, k int, pred func(string) bool) []Neighbor {
	candidates := make([]Neighbor, 0, len(entries))
	for _, e := range entries {
		if pred != nil && !pred(e.ID) {
			continue
		}
		candidates = append(candidates, Neighbor{ID: e.ID, Distance: geo.Distance(q, e.Point)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func randomEntries(n int, seed int64) []Entry {
	r := rand.New(rand.NewSource(seed))
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			ID:    fmt.Sprintf("station_%04d", i),
			Point: geo.PlanarPoint{X: r.Float64() * 1e6, Y: r.Float64() * 1e6},
		}
	}
	return entries
}

func BenchmarkNearestK(b *testing.B) {
	ix := New()
	ix.Build(randomEntries(100000, 5))
	q := geo.PlanarPoint{X: 5e5, Y: 5e5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.NearestK(q, 10, nil)
	}
}

func BenchmarkRange(b *testing.B) {
	ix := New()
	ix.Build(randomEntries(100000, 5))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ix.Range(geo.PlanarPoint{X: 4e5, Y: 4e5}, geo.PlanarPoint{X: 6e5, Y: 6e5})
	}
}
