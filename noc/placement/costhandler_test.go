package placement

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// bfsRouter is a fake RoutingAlgorithm that finds a shortest path by
// breadth-first search over the model's links. It has no notion of
// dimension order; it exists only to exercise CostHandler's transaction
// machinery against small, hand-built topologies.
type bfsRouter struct{}

func (bfsRouter) RouteFlow(source, sink RouterID, flow FlowID, model *NocModel) (Route, error) {
	if source == sink {
		return Route{}, nil
	}

	type step struct {
		router RouterID
		route  Route
	}

	visited := map[RouterID]bool{source: true}
	queue := []step{{router: source}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for i := 0; i < model.NumLinks(); i++ {
			link := model.Link(LinkID(i))
			if link.Source != cur.router || visited[link.Sink] {
				continue
			}

			next := append(cur.route.clone(), link.ID)
			if link.Sink == sink {
				return next, nil
			}

			visited[link.Sink] = true
			queue = append(queue, step{router: link.Sink, route: next})
		}
	}

	return nil, nil
}

// fakeFlows is a hand-written TrafficFlowStorage fake grounded on this
// codebase's pre-mockgen mock idiom: a plain struct literal implementing
// the interface directly, no generated boilerplate.
type fakeFlows struct {
	flows       []TrafficFlow
	routerClus  map[ClusterID]bool
	byCluster   map[ClusterID][]FlowID
	routerOrder []ClusterID
}

func newFakeFlows(flows []TrafficFlow, routerClusters []ClusterID) *fakeFlows {
	f := &fakeFlows{
		flows:       flows,
		routerClus:  make(map[ClusterID]bool),
		byCluster:   make(map[ClusterID][]FlowID),
		routerOrder: routerClusters,
	}

	for _, c := range routerClusters {
		f.routerClus[c] = true
	}

	for _, flow := range flows {
		f.byCluster[flow.Source] = append(f.byCluster[flow.Source], flow.ID)
		f.byCluster[flow.Sink] = append(f.byCluster[flow.Sink], flow.ID)
	}

	return f
}

func (f *fakeFlows) FlowCount() int { return len(f.flows) }

func (f *fakeFlows) AllFlowIDs() []FlowID {
	ids := make([]FlowID, len(f.flows))
	for i, flow := range f.flows {
		ids[i] = flow.ID
	}

	return ids
}

func (f *fakeFlows) Flow(id FlowID) TrafficFlow { return f.flows[id] }

func (f *fakeFlows) IsRouterCluster(cluster ClusterID) bool { return f.routerClus[cluster] }

func (f *fakeFlows) AssociatedFlows(cluster ClusterID) []FlowID { return f.byCluster[cluster] }

func (f *fakeFlows) RouterClusters() []ClusterID { return f.routerOrder }

// fakeBlockLocs is a mutable hand-written BlockLocationProvider fake.
type fakeBlockLocs map[ClusterID]BlockLocation

func (f fakeBlockLocs) Location(cluster ClusterID) BlockLocation { return f[cluster] }

func linearModel(linkBandwidth float64) *NocModel {
	return NewNocModel(
		[]NocRouter{
			{ID: 0, X: 0, Y: 0, Layer: 0, Latency: 1},
			{ID: 1, X: 1, Y: 0, Layer: 0, Latency: 1},
		},
		[]NocLink{
			{ID: 0, Source: 0, Sink: 1, Bandwidth: linkBandwidth, Latency: 2},
		},
		1, 2, false, false,
	)
}

func ringModel(linkBandwidth float64) *NocModel {
	routers := []NocRouter{
		{ID: 0, X: 0, Y: 0, Layer: 0},
		{ID: 1, X: 1, Y: 0, Layer: 0},
		{ID: 2, X: 1, Y: 1, Layer: 0},
		{ID: 3, X: 0, Y: 1, Layer: 0},
	}

	links := []NocLink{
		{ID: 0, Source: 0, Sink: 1, Bandwidth: linkBandwidth, Latency: 1},
		{ID: 1, Source: 1, Sink: 2, Bandwidth: linkBandwidth, Latency: 1},
		{ID: 2, Source: 2, Sink: 3, Bandwidth: linkBandwidth, Latency: 1},
		{ID: 3, Source: 3, Sink: 0, Bandwidth: linkBandwidth, Latency: 1},
	}

	return NewNocModel(routers, links, 1, 1, false, false)
}

var _ = Describe("CostHandler", func() {
	It("computes S1: a single flow on a two-router NoC", func() {
		model := linearModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 1, Bandwidth: 1.0, Priority: 1, MaxLatency: 10}},
			[]ClusterID{0, 1},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		terms, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(terms.AggregateBandwidth).To(Equal(1.0))
		Expect(terms.Latency).To(Equal(4.0))
		Expect(terms.LatencyOverrun).To(Equal(0.0))
		Expect(terms.Congestion).To(Equal(0.0))
		Expect(terms).To(Equal(h.CommittedCostTerms()))
	})

	It("computes S2: a single over-subscribed link produces 0.1 congestion", func() {
		model := linearModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 1, Bandwidth: 11.0, Priority: 1, MaxLatency: 100}},
			[]ClusterID{0, 1},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		terms, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(terms.Congestion).To(BeNumerically("~", 0.1, 1e-9))
	})

	It("computes S3: two flows sharing one link on a ring produce 0.2 congestion", func() {
		model := ringModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{
				{ID: 0, Source: 0, Sink: 1, Bandwidth: 6, Priority: 1, MaxLatency: 100},
				{ID: 1, Source: 3, Sink: 1, Bandwidth: 6, Priority: 1, MaxLatency: 100},
			},
			[]ClusterID{0, 1, 2, 3},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
			2: {Loc: GridLoc{X: 1, Y: 1, Layer: 0}},
			3: {Loc: GridLoc{X: 0, Y: 1, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		terms, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(terms.Congestion).To(BeNumerically("~", 0.2, 1e-9))
	})

	It("computes S4: evaluate_delta then revert restores state bit-for-bit", func() {
		model := ringModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{
				{ID: 0, Source: 0, Sink: 2, Bandwidth: 1, Priority: 1, MaxLatency: 100},
			},
			[]ClusterID{0, 1, 2, 3},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
			2: {Loc: GridLoc{X: 1, Y: 1, Layer: 0}},
			3: {Loc: GridLoc{X: 0, Y: 1, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		before, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		beforeRoute := h.CommittedRoutes()[0].clone()
		beforeUsage := append([]float64(nil), h.linkBandwidthUsage...)

		// Move cluster 2 to swap places with cluster 3, forcing a re-route
		// of the flow whose sink moved.
		locs[2] = BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}
		locs[3] = BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}

		move := MoveTransaction{MovedBlocks: []BlockMove{
			{Cluster: 2, FromLoc: BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}, ToLoc: locs[2]},
			{Cluster: 3, FromLoc: BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}, ToLoc: locs[3]},
		}}

		_, err = h.EvaluateDelta(move)
		Expect(err).NotTo(HaveOccurred())

		h.Revert()

		// Move the clusters back so the routing collaborator is consulted
		// against the original locations again on any subsequent call.
		locs[2] = BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}
		locs[3] = BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}

		after, err := h.RecomputeFromScratch(before, 1e-9)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before))
		Expect(h.CommittedRoutes()[0]).To(Equal(beforeRoute))
		Expect(h.linkBandwidthUsage).To(Equal(beforeUsage))
	})

	It("rejects a second EvaluateDelta before Commit or Revert", func() {
		model := linearModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 1, Bandwidth: 1, Priority: 1, MaxLatency: 100}},
			[]ClusterID{0, 1},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		_, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = h.EvaluateDelta(MoveTransaction{})
		Expect(err).NotTo(HaveOccurred())

		_, err = h.EvaluateDelta(MoveTransaction{})
		Expect(err).To(HaveOccurred())

		h.Revert()
	})

	It("detects drift via RecomputeFromScratch", func() {
		model := linearModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 1, Bandwidth: 1, Priority: 1, MaxLatency: 10}},
			[]ClusterID{0, 1},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		tracked, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		recomputed, err := h.RecomputeFromScratch(tracked, 0.01)
		Expect(err).NotTo(HaveOccurred())
		Expect(recomputed).To(Equal(tracked))

		tracked.AggregateBandwidth = 999
		_, err = h.RecomputeFromScratch(tracked, 0.01)
		Expect(err).To(HaveOccurred())

		var drift *DriftError
		Expect(errors.As(err, &drift)).To(BeTrue())
		Expect(drift.Term).To(Equal("aggregate_bandwidth"))
	})

	It("detects drift via CheckPlacement's fresh re-route audit and returns an error count", func() {
		model := linearModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 1, Bandwidth: 1, Priority: 1, MaxLatency: 10}},
			[]ClusterID{0, 1},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		tracked, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		errCount, err := h.CheckPlacement(tracked, 0.01)
		Expect(err).NotTo(HaveOccurred())
		Expect(errCount).To(Equal(0))

		tracked.AggregateBandwidth = 999
		errCount, err = h.CheckPlacement(tracked, 0.01)
		Expect(err).To(HaveOccurred())
		Expect(errCount).To(Equal(1))

		var drift *DriftError
		Expect(errors.As(err, &drift)).To(BeTrue())
	})

	It("CheckPlacement never mutates committed routing state", func() {
		model := linearModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 1, Bandwidth: 1, Priority: 1, MaxLatency: 10}},
			[]ClusterID{0, 1},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		tracked, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		beforeRoute := h.CommittedRoutes()[0].clone()
		beforeUsage := append([]float64(nil), h.linkBandwidthUsage...)

		_, err = h.CheckPlacement(tracked, 0.01)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.CommittedRoutes()[0]).To(Equal(beforeRoute))
		Expect(h.linkBandwidthUsage).To(Equal(beforeUsage))
	})

	It("CongestedLinks sorts by usage descending, tie-broken by link id", func() {
		model := ringModel(10)
		flows := newFakeFlows(nil, nil)

		h := NewCostHandler(model, flows, fakeBlockLocs{}, bfsRouter{}, DefaultOptions())
		h.linkBandwidthUsage = []float64{5, 20, 20, 1}

		Expect(h.CongestedLinks(4)).To(Equal([]LinkID{1, 2, 0, 3}))
		Expect(h.CongestedLinks(2)).To(Equal([]LinkID{1, 2}))
	})

	It("Commit clears the affected-flow and affected-link scratch sets", func() {
		model := ringModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 2, Bandwidth: 1, Priority: 1, MaxLatency: 100}},
			[]ClusterID{0, 1, 2, 3},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
			2: {Loc: GridLoc{X: 1, Y: 1, Layer: 0}},
			3: {Loc: GridLoc{X: 0, Y: 1, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		_, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		locs[2] = BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}
		locs[3] = BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}

		move := MoveTransaction{MovedBlocks: []BlockMove{
			{Cluster: 2, FromLoc: BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}, ToLoc: locs[2]},
			{Cluster: 3, FromLoc: BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}, ToLoc: locs[3]},
		}}

		_, err = h.EvaluateDelta(move)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.affectedFlows).NotTo(BeEmpty())

		h.Commit()

		Expect(h.affectedFlows).To(BeEmpty())
		Expect(h.affectedLinks).To(BeEmpty())
	})

	It("Revert clears the affected-flow and affected-link scratch sets", func() {
		model := ringModel(10)
		flows := newFakeFlows(
			[]TrafficFlow{{ID: 0, Source: 0, Sink: 2, Bandwidth: 1, Priority: 1, MaxLatency: 100}},
			[]ClusterID{0, 1, 2, 3},
		)
		locs := fakeBlockLocs{
			0: {Loc: GridLoc{X: 0, Y: 0, Layer: 0}},
			1: {Loc: GridLoc{X: 1, Y: 0, Layer: 0}},
			2: {Loc: GridLoc{X: 1, Y: 1, Layer: 0}},
			3: {Loc: GridLoc{X: 0, Y: 1, Layer: 0}},
		}

		h := NewCostHandler(model, flows, locs, bfsRouter{}, DefaultOptions())
		_, err := h.InitialRouting(nil)
		Expect(err).NotTo(HaveOccurred())

		locs[2] = BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}
		locs[3] = BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}

		move := MoveTransaction{MovedBlocks: []BlockMove{
			{Cluster: 2, FromLoc: BlockLocation{Loc: GridLoc{X: 1, Y: 1, Layer: 0}}, ToLoc: locs[2]},
			{Cluster: 3, FromLoc: BlockLocation{Loc: GridLoc{X: 0, Y: 1, Layer: 0}}, ToLoc: locs[3]},
		}}

		_, err = h.EvaluateDelta(move)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.affectedFlows).NotTo(BeEmpty())

		h.Revert()

		Expect(h.affectedFlows).To(BeEmpty())
		Expect(h.affectedLinks).To(BeEmpty())
	})
})
