package placement

import "math"

// MinExpectedCost is the threshold below which CostHandler's drift checks
// treat the latency, latency-overrun and congestion terms as zero and skip
// comparing them.
const MinExpectedCost = 1e-12

// AggregateBandwidthCost is bandwidth * hop_count scaled by the flow's
// priority. Grounded on calculate_traffic_flow_aggregate_bandwidth_cost.
func AggregateBandwidthCost(flow TrafficFlow, route Route) float64 {
	return flow.Priority * flow.Bandwidth * float64(len(route))
}

// LatencyCost returns the flow's latency cost and the overrun beyond its
// maximum latency constraint, both scaled by the flow's priority. The
// overrun is computed from the unscaled latency first, via
// max(0, latency-max_latency), and only then is either value multiplied
// by priority -- exactly once, after the max. Grounded on
// calculate_traffic_flow_latency_cost.
func LatencyCost(flow TrafficFlow, route Route, model *NocModel) (latency, overrun float64) {
	rawLatency := routeLatency(route, model)

	rawOverrun := math.Max(0, rawLatency-flow.MaxLatency)

	return rawLatency * flow.Priority, rawOverrun * flow.Priority
}

// routeLatency sums per-hop link latency and the latency of every router
// the route passes through (source router of each link plus the final sink
// router). Each detail flag selects between the per-entity latency and the
// model's default latency.
func routeLatency(route Route, model *NocModel) float64 {
	var total float64

	for _, linkID := range route {
		link := model.Link(linkID)

		if model.DetailedLinkLatency {
			total += link.Latency
		} else {
			total += model.DefaultLinkLatency
		}

		if model.DetailedRouterLatency {
			total += model.Router(link.Source).Latency
		} else {
			total += model.DefaultRouterLatency
		}
	}

	if len(route) > 0 {
		lastLink := model.Link(route[len(route)-1])

		if model.DetailedRouterLatency {
			total += model.Router(lastLink.Sink).Latency
		} else {
			total += model.DefaultRouterLatency
		}
	}

	return total
}

// CongestionCost returns a single link's congestion contribution: zero
// when usage is within bandwidth, otherwise the fraction by which usage
// exceeds bandwidth. A link with non-positive bandwidth contributes zero.
// Grounded on NocCostHandler::get_link_congestion_cost.
func CongestionCost(usage, bandwidth float64) float64 {
	if bandwidth <= 0 {
		return 0
	}

	overflow := usage - bandwidth

	if overflow <= 0 {
		return 0
	}

	return overflow / bandwidth
}
