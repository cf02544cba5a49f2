package placement

// invalidCostTerm flags a FlowCostTerms/LinkCongestionCost slot as "not
// currently part of a pending transaction" (spec §3 I5, §9 "Sentinel
// values"). All real cost terms are >= 0, so a negative sentinel is
// distinguishable without a side-set of dirty ids.
const invalidCostTerm = -1.0

// TrafficFlow is a directed source -> sink communication demand between two
// router clusters.
type TrafficFlow struct {
	ID           FlowID
	Source, Sink ClusterID
	Bandwidth    float64
	Priority     float64
	MaxLatency   float64
}

// FlowCostTerms are the per-flow cached cost contributions (I4).
type FlowCostTerms struct {
	AggregateBandwidth float64
	Latency            float64
	LatencyOverrun     float64
}

func invalidFlowCostTerms() FlowCostTerms {
	return FlowCostTerms{
		AggregateBandwidth: invalidCostTerm,
		Latency:            invalidCostTerm,
		LatencyOverrun:     invalidCostTerm,
	}
}

// TrafficFlowStorage is the read-only collaborator providing the traffic
// flow set and its relationship to router clusters (§6).
type TrafficFlowStorage interface {
	FlowCount() int
	AllFlowIDs() []FlowID
	Flow(id FlowID) TrafficFlow
	IsRouterCluster(cluster ClusterID) bool
	AssociatedFlows(cluster ClusterID) []FlowID
	RouterClusters() []ClusterID
}
