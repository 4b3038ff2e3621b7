package undercut

import "context"

// DistanceStore persists computed jump counts so the BFS runs once per pair.
type DistanceStore interface {
	JumpDistance(ctx context.Context, origin, dest int64) (int, bool, error)
	SaveJumpDistance(ctx context.Context, origin, dest int64, jumps int) error
}

// Distances answers jump-distance queries, consulting the store before
// falling back to a graph search.
type Distances struct {
	graph Graph
	store DistanceStore
}

func NewDistances(graph Graph, store DistanceStore) *Distances {
	return &Distances{graph: graph, store: store}
}

func (d *Distances) Between(ctx context.Context, origin, dest int64) (int, error) {
	if jumps, ok, err := d.store.JumpDistance(ctx, origin, dest); err != nil {
		return 0, err
	} else if ok {
		return jumps, nil
	}

	jumps, err := Jumps(ctx, d.graph, origin, dest)
	if err != nil {
		return 0, err
	}
	if err := d.store.SaveJumpDistance(ctx, origin, dest, jumps); err != nil {
		return 0, err
	}
	return jumps, nil
}
