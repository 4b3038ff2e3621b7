package undercut

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type mapGraph struct {
	edges map[int64][]int64
	calls map[int64]int
}

func newMapGraph(edges map[int64][]int64) *mapGraph {
	return &mapGraph{edges: edges, calls: make(map[int64]int)}
}

func (g *mapGraph) Neighbors(_ context.Context, systemID int64) ([]int64, error) {
	g.calls[systemID]++
	return g.edges[systemID], nil
}

// 1 - 2 - 3 - 4
//      \     /
//       5 - 6
func testGraph() *mapGraph {
	return newMapGraph(map[int64][]int64{
		1: {2},
		2: {1, 3, 5},
		3: {2, 4},
		4: {3, 6},
		5: {2, 6},
		6: {4, 5},
	})
}

func TestJumpsFindsShortestPath(t *testing.T) {
	g := testGraph()

	jumps, err := Jumps(context.Background(), g, 1, 4)
	require.NoError(t, err)
	require.Equal(t, 3, jumps)

	jumps, err = Jumps(context.Background(), g, 1, 6)
	require.NoError(t, err)
	require.Equal(t, 3, jumps)
}

func TestJumpsSameSystemIsZero(t *testing.T) {
	jumps, err := Jumps(context.Background(), testGraph(), 3, 3)
	require.NoError(t, err)
	require.Equal(t, 0, jumps)
}

func TestJumpsUnreachableIsNegative(t *testing.T) {
	g := newMapGraph(map[int64][]int64{1: {2}, 2: {1}, 9: {}})

	jumps, err := Jumps(context.Background(), g, 1, 9)
	require.NoError(t, err)
	require.Equal(t, -1, jumps)
}

type fakeDistances struct {
	known map[[2]int64]int
	saved map[[2]int64]int
}

func (d *fakeDistances) JumpDistance(_ context.Context, o, dst int64) (int, bool, error) {
	jumps, ok := d.known[[2]int64{o, dst}]
	return jumps, ok, nil
}

func (d *fakeDistances) SaveJumpDistance(_ context.Context, o, dst int64, jumps int) error {
	d.saved[[2]int64{o, dst}] = jumps
	return nil
}

func TestDistancesPreferStore(t *testing.T) {
	g := testGraph()
	store := &fakeDistances{
		known: map[[2]int64]int{{1, 4}: 3},
		saved: make(map[[2]int64]int),
	}
	d := NewDistances(g, store)

	jumps, err := d.Between(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Equal(t, 3, jumps)
	require.Empty(t, g.calls, "stored distance must short-circuit the search")
}

func TestDistancesComputeAndPersist(t *testing.T) {
	store := &fakeDistances{
		known: make(map[[2]int64]int),
		saved: make(map[[2]int64]int),
	}
	d := NewDistances(testGraph(), store)

	jumps, err := d.Between(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, 2, jumps)
	require.Equal(t, 2, store.saved[[2]int64{1, 5}])
}
