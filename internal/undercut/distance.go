package undercut

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/esi"
	gocache "github.com/patrickmn/go-cache"
)

// bfsLimit caps the search depth; no two reachable systems in the cluster
// are further apart than this.
const bfsLimit = 100

// Graph yields the systems directly reachable from one system by stargate.
type Graph interface {
	Neighbors(ctx context.Context, systemID int64) ([]int64, error)
}

// UniverseSource is the slice of the upstream client the graph needs.
type UniverseSource interface {
	System(ctx context.Context, systemID int64) (esi.SystemInfo, error)
	Stargate(ctx context.Context, stargateID int64) (esi.StargateInfo, error)
}

// StargateGraph expands the stargate adjacency lazily from the upstream,
// memoising per system. The topology is static, so entries never expire
// within a process lifetime.
type StargateGraph struct {
	source UniverseSource
	cache  *gocache.Cache
}

func NewStargateGraph(source UniverseSource) *StargateGraph {
	return &StargateGraph{
		source: source,
		cache:  gocache.New(gocache.NoExpiration, time.Hour),
	}
}

func (g *StargateGraph) Neighbors(ctx context.Context, systemID int64) ([]int64, error) {
	key := fmt.Sprintf("neighbors:%d", systemID)
	if v, ok := g.cache.Get(key); ok {
		return v.([]int64), nil
	}

	system, err := g.source.System(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("can't expand system %d: %w", systemID, err)
	}

	neighbors := make([]int64, 0, len(system.Stargates))
	for _, gateID := range system.Stargates {
		gate, err := g.source.Stargate(ctx, gateID)
		if err != nil {
			return nil, fmt.Errorf("can't expand stargate %d: %w", gateID, err)
		}
		neighbors = append(neighbors, gate.Destination.SystemID)
	}

	g.cache.SetDefault(key, neighbors)
	return neighbors, nil
}

// Jumps runs a breadth-first search over the stargate graph and returns the
// minimum number of jumps between two systems, or -1 when the destination is
// unreachable.
func Jumps(ctx context.Context, g Graph, origin, dest int64) (int, error) {
	if origin == dest {
		return 0, nil
	}

	visited := map[int64]struct{}{origin: {}}
	frontier := []int64{origin}

	for depth := 1; depth <= bfsLimit && len(frontier) > 0; depth++ {
		var next []int64
		for _, systemID := range frontier {
			neighbors, err := g.Neighbors(ctx, systemID)
			if err != nil {
				return 0, err
			}
			for _, n := range neighbors {
				if _, ok := visited[n]; ok {
					continue
				}
				if n == dest {
					return depth, nil
				}
				visited[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}

	return -1, nil
}
