package placement

import "sort"

// rerouteAssociatedFlows re-routes every flow touching cluster that has
// not already been re-routed this transaction, recording the affected
// flow and link ids on h. Grounded on
// NocCostHandler::re_route_associated_traffic_flows.
func (h *CostHandler) rerouteAssociatedFlows(cluster ClusterID, updated map[FlowID]bool) error {
	for _, id := range h.flows.AssociatedFlows(cluster) {
		if updated[id] {
			continue
		}

		prev := h.committedRoutes[id].clone()

		if err := h.rerouteFlow(id); err != nil {
			return err
		}

		updated[id] = true

		curr := h.committedRoutes[id]

		for _, link := range affectedLinksFromReroute(prev, curr) {
			h.affectedLinks = appendUniqueLink(h.affectedLinks, link)
		}

		h.affectedFlows = append(h.affectedFlows, id)
	}

	return nil
}

// rerouteFlow decrements link usage along the flow's current route, backs
// that route up, re-routes the flow, and increments link usage along the
// new route. Grounded on NocCostHandler::re_route_traffic_flow.
func (h *CostHandler) rerouteFlow(id FlowID) error {
	flow := h.flows.Flow(id)

	current := h.committedRoutes[id]
	h.updateLinkUsage(current, -1, flow.Bandwidth)

	h.committedRoutes[id], h.backupRoutes[id] = h.backupRoutes[id], current

	route, err := h.routeFlow(id, flow)
	if err != nil {
		return err
	}

	h.committedRoutes[id] = route
	h.updateLinkUsage(route, 1, flow.Bandwidth)

	return nil
}

// affectedLinksFromReroute returns the links that appear in exactly one of
// prev and curr: the symmetric difference of the two routes, found by
// sorting each and taking the set difference in both directions. Grounded
// on find_affected_links_by_flow_reroute. Both arguments are sorted by
// value, not in place — curr aliases h.committedRoutes[id], and reordering
// it would corrupt the ordered link sequence the channel-dependency graph
// depends on.
func affectedLinksFromReroute(prev, curr Route) []LinkID {
	prev = prev.clone()
	curr = curr.clone()

	sort.Slice(prev, func(i, j int) bool { return prev[i] < prev[j] })
	sort.Slice(curr, func(i, j int) bool { return curr[i] < curr[j] })

	var unique []LinkID

	unique = append(unique, sortedSetDifference(prev, curr)...)
	unique = append(unique, sortedSetDifference(curr, prev)...)

	return unique
}

// sortedSetDifference returns the elements of a not present in b. Both
// slices must already be sorted ascending.
func sortedSetDifference(a, b []LinkID) []LinkID {
	var out []LinkID

	i, j := 0, 0

	for i < len(a) {
		if j >= len(b) || a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else if a[i] == b[j] {
			i++
			j++
		} else {
			j++
		}
	}

	return out
}

func appendUniqueLink(links []LinkID, l LinkID) []LinkID {
	for _, existing := range links {
		if existing == l {
			return links
		}
	}

	return append(links, l)
}
