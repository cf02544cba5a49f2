package placement

import (
	"fmt"
	"math/rand"
)

// Proposer generates candidate router-swap moves for the annealer to feed
// into CostHandler.EvaluateDelta. Grounded on check_for_router_swap,
// select_random_router_cluster and propose_router_swap.
type Proposer struct {
	flows  TrafficFlowStorage
	blocks BlockLocationProvider

	// CompatibleLoc picks a swap target location within rlim of from,
	// respecting floorplan and tile-type compatibility. It returns ok=false
	// when no compatible location could be found. This package does not
	// implement the placer's legality rules; callers supply them.
	CompatibleLoc func(from BlockLocation, rlim float64, rng *rand.Rand) (BlockLocation, bool)
}

// NewProposer builds a Proposer over the given traffic flow and block
// location collaborators.
func NewProposer(flows TrafficFlowStorage, blocks BlockLocationProvider, compatibleLoc func(BlockLocation, float64, *rand.Rand) (BlockLocation, bool)) *Proposer {
	return &Proposer{flows: flows, blocks: blocks, CompatibleLoc: compatibleLoc}
}

// ShouldProposeRouterSwap decides, given the configured router swap
// percentage (0-100), whether the next proposed move should target a
// router-to-router swap rather than some other move type. Grounded on
// check_for_router_swap.
func ShouldProposeRouterSwap(percent int, rng *rand.Rand) bool {
	return rng.Intn(100) < percent
}

// ProposeRouterSwap randomly selects a movable router cluster and a
// compatible swap target within rlim, returning ErrProposalAborted when no
// legal swap exists: there are no router clusters, the selected cluster is
// fixed, or no compatible target location could be found. Grounded on
// select_random_router_cluster and propose_router_swap.
func (p *Proposer) ProposeRouterSwap(rlim float64, rng *rand.Rand) (MoveTransaction, error) {
	clusters := p.flows.RouterClusters()
	if len(clusters) == 0 {
		return MoveTransaction{}, fmt.Errorf("%w: no router clusters in design", ErrProposalAborted)
	}

	from := clusters[rng.Intn(len(clusters))]
	fromLoc := p.blocks.Location(from)

	if fromLoc.Fixed {
		return MoveTransaction{}, fmt.Errorf("%w: selected router cluster is fixed", ErrProposalAborted)
	}

	toLoc, ok := p.CompatibleLoc(fromLoc, rlim, rng)
	if !ok {
		return MoveTransaction{}, fmt.Errorf("%w: no compatible swap target within rlim", ErrProposalAborted)
	}

	return MoveTransaction{
		MovedBlocks: []BlockMove{
			{Cluster: from, FromLoc: fromLoc, ToLoc: toLoc},
		},
	}, nil
}
