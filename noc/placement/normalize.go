package placement

// UpdateNormFactors recomputes the normalization factors from the current
// cost terms, clamping each factor so a near-zero cost term cannot drive
// it to infinity. Each term is clamped against its own MAX_INV_* cap, not
// a shared one. Grounded on update_noc_normalization_factors.
func UpdateNormFactors(terms NocCostTerms) NocCostNormFactors {
	return NocCostNormFactors{
		AggregateBandwidth: invClamped(terms.AggregateBandwidth, MaxInvAggregateBandwidthCost),
		Latency:            invClamped(terms.Latency, MaxInvLatencyCost),
		LatencyOverrun:     invClampedOrMax(terms.LatencyOverrun, MaxInvLatencyCost),
		Congestion:         invClampedOrMax(terms.Congestion, MaxInvCongestionCost),
	}
}

func invClamped(term, max float64) float64 {
	if term <= 0 {
		return max
	}

	inv := 1 / term
	if inv > max {
		return max
	}

	return inv
}

// invClampedOrMax mirrors the overrun/congestion branches in
// update_noc_normalization_factors, which take MAX_INV outright for a
// non-positive term instead of dividing by it.
func invClampedOrMax(term, max float64) float64 {
	if term <= 0 {
		return max
	}

	return invClamped(term, max)
}

// TotalCost computes the NoC's weighted contribution to the placer's cost
// function. Grounded on calculate_noc_cost.
func TotalCost(terms NocCostTerms, norm NocCostNormFactors, opts Options) float64 {
	weighted := terms.AggregateBandwidth*norm.AggregateBandwidth*opts.AggregateBandwidthWeighting +
		terms.Latency*norm.Latency*opts.LatencyWeighting +
		terms.LatencyOverrun*norm.LatencyOverrun*opts.LatencyConstraintsWeighting +
		terms.Congestion*norm.Congestion*opts.CongestionWeighting

	return opts.PlacementWeighting * weighted
}
