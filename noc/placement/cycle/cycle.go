// Package cycle detects deadlock-capable cycles in the channel-dependency
// graph induced by a set of committed NoC routes: one node per link, one
// edge for every pair of links that appear back to back in some route.
package cycle

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/RonZ13/vtr-noc-placer/noc/placement"
)

// Graph is the channel-dependency graph for one snapshot of committed
// routes. It is cheap to build and is never maintained incrementally;
// callers rebuild it from scratch on every query.
type Graph struct {
	g *simple.DirectedGraph
}

// Build constructs the channel-dependency graph from routes: an edge
// lᵢ -> lⱼ whenever lᵢ is immediately followed by lⱼ in some route, and a
// node for every link id that is an endpoint of such an edge. A link that
// never appears next to another link in a route gets no node. Grounded on
// NocCostHandler::noc_routing_has_cycle and ChannelDependencyGraph.
func Build(routes []placement.Route) *Graph {
	g := simple.NewDirectedGraph()

	for _, route := range routes {
		for i := 0; i+1 < len(route); i++ {
			from := linkNode(route[i])
			to := linkNode(route[i+1])

			if !g.HasEdgeFromTo(from.ID(), to.ID()) {
				addNodeIfAbsent(g, from)
				addNodeIfAbsent(g, to)
				g.SetEdge(g.NewEdge(from, to))
			}
		}
	}

	return &Graph{g: g}
}

// HasCycle reports whether the channel-dependency graph contains at least
// one cycle, which indicates the current routing set is not
// deadlock-free.
func (gr *Graph) HasCycle() bool {
	return len(topo.DirectedCyclesIn(gr.g)) > 0
}

type linkNode int64

func (n linkNode) ID() int64 { return int64(n) }

func addNodeIfAbsent(g *simple.DirectedGraph, n graph.Node) {
	if g.Node(n.ID()) == nil {
		g.AddNode(n)
	}
}
