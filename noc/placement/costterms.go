package placement

// NocCostTerms are the four normalized cost terms the annealer's
// acceptance test consumes.
type NocCostTerms struct {
	AggregateBandwidth float64
	Latency            float64
	LatencyOverrun     float64
	Congestion         float64
}

// Add returns the element-wise sum of two cost terms.
func (c NocCostTerms) Add(o NocCostTerms) NocCostTerms {
	return NocCostTerms{
		AggregateBandwidth: c.AggregateBandwidth + o.AggregateBandwidth,
		Latency:            c.Latency + o.Latency,
		LatencyOverrun:     c.LatencyOverrun + o.LatencyOverrun,
		Congestion:         c.Congestion + o.Congestion,
	}
}

// NocCostNormFactors are the per-term normalization factors computed by
// UpdateNormFactors.
type NocCostNormFactors struct {
	AggregateBandwidth float64
	Latency            float64
	LatencyOverrun     float64
	Congestion         float64
}
