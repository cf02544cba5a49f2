// Package routing provides a concrete, pluggable implementation of the
// placement package's RoutingAlgorithm interface: dimension-order routing
// over a mesh, adapted from a per-hop routing-table lookup into a full
// source-to-sink path builder.
package routing

import (
	"fmt"
	"sync"

	"github.com/RonZ13/vtr-noc-placer/noc/placement"
)

// DimensionOrderMesh routes a flow hop by hop, resolving one coordinate
// axis at a time in a fixed order (layer, then y, then x) until the
// current router's coordinates match the sink's. Grounded on
// meshRoutingTable.FindPort's switch over dstZ/dstY/dstX.
type DimensionOrderMesh struct {
	mu        sync.Mutex
	model     *placement.NocModel
	adjacency map[[2]placement.RouterID]placement.LinkID
}

// New returns a DimensionOrderMesh with no cached topology; the adjacency
// index is built lazily on first use and rebuilt whenever a different
// *NocModel is passed in.
func New() *DimensionOrderMesh {
	return &DimensionOrderMesh{}
}

// RouteFlow walks from source to sink one hop at a time, resolving the
// layer axis first, then y, then x, and returns the link ids traversed.
func (d *DimensionOrderMesh) RouteFlow(source, sink placement.RouterID, flow placement.FlowID, model *placement.NocModel) (placement.Route, error) {
	d.ensureAdjacency(model)

	if source == sink {
		return placement.Route{}, nil
	}

	var route placement.Route

	visited := map[placement.RouterID]bool{source: true}
	cur := source

	for cur != sink {
		next, err := d.nextHop(cur, sink)
		if err != nil {
			return nil, fmt.Errorf("routing flow %d from router %d to %d: %w", flow, source, sink, err)
		}

		link, ok := d.adjacency[[2]placement.RouterID{cur, next}]
		if !ok {
			return nil, fmt.Errorf("routing flow %d: no link from router %d to %d", flow, cur, next)
		}

		route = append(route, link)

		if visited[next] {
			return nil, fmt.Errorf("routing flow %d: dimension-order routing looped back to router %d", flow, next)
		}

		visited[next] = true
		cur = next
	}

	return route, nil
}

func (d *DimensionOrderMesh) ensureAdjacency(model *placement.NocModel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.model == model {
		return
	}

	d.model = model
	d.adjacency = make(map[[2]placement.RouterID]placement.LinkID, model.NumLinks())

	for i := 0; i < model.NumLinks(); i++ {
		link := model.Link(placement.LinkID(i))
		d.adjacency[[2]placement.RouterID{link.Source, link.Sink}] = link.ID
	}
}

// nextHop resolves the single axis dimension-order routing should move
// along next: layer first, then y, then x.
func (d *DimensionOrderMesh) nextHop(cur, sink placement.RouterID) (placement.RouterID, error) {
	curRouter := d.model.Router(cur)
	sinkRouter := d.model.Router(sink)

	x, y, layer := curRouter.X, curRouter.Y, curRouter.Layer

	switch {
	case sinkRouter.Layer < layer:
		layer--
	case sinkRouter.Layer > layer:
		layer++
	case sinkRouter.Y < y:
		y--
	case sinkRouter.Y > y:
		y++
	case sinkRouter.X < x:
		x--
	case sinkRouter.X > x:
		x++
	default:
		return 0, fmt.Errorf("router %d already at sink coordinates but ids differ", cur)
	}

	next := d.model.RouterAt(x, y, layer)

	return next, nil
}
