package placement

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Per-term caps on a normalization factor, so a near-zero cost term
// cannot drive it to infinity. Grounded on MAX_INV_NOC_AGGREGATE_BANDWIDTH_COST,
// MAX_INV_NOC_LATENCY_COST, and MAX_INV_NOC_CONGESTION_COST
// (noc_place_utils.cpp:422-438). The latency-overrun term reuses the
// latency cap, matching update_noc_normalization_factors.
const (
	MaxInvAggregateBandwidthCost = 1e9
	MaxInvLatencyCost            = 1e9
	MaxInvCongestionCost         = 1e9
)

// Options configures a CostHandler: the relative weighting of its four
// cost terms and the share of placer-proposed moves that should target a
// router swap. Latency modeling detail is set on NocModel, not here.
type Options struct {
	PlacementWeighting          float64
	AggregateBandwidthWeighting float64
	LatencyWeighting            float64
	LatencyConstraintsWeighting float64
	CongestionWeighting         float64
	RouterSwapPercentage        int
}

// DefaultOptions returns the weighting scheme used when no configuration
// is supplied: all four terms equally weighted, one in five proposed
// moves targets a router swap.
func DefaultOptions() Options {
	return Options{
		PlacementWeighting:          1.0,
		AggregateBandwidthWeighting: 1.0,
		LatencyWeighting:            1.0,
		LatencyConstraintsWeighting: 1.0,
		CongestionWeighting:         1.0,
		RouterSwapPercentage:        20,
	}
}

// NormalizeWeights rescales the four term weightings so they sum to one,
// leaving PlacementWeighting and RouterSwapPercentage untouched. Grounded
// on normalize_noc_cost_weighting_factor.
func (o Options) NormalizeWeights() Options {
	sum := o.AggregateBandwidthWeighting + o.LatencyWeighting +
		o.LatencyConstraintsWeighting + o.CongestionWeighting

	if sum == 0 {
		return o
	}

	o.AggregateBandwidthWeighting /= sum
	o.LatencyWeighting /= sum
	o.LatencyConstraintsWeighting /= sum
	o.CongestionWeighting /= sum

	return o
}

// OptionsBuilder assembles an Options value with fluent With* calls.
type OptionsBuilder struct {
	opts Options
}

// NewOptionsBuilder starts a builder seeded with DefaultOptions.
func NewOptionsBuilder() OptionsBuilder {
	return OptionsBuilder{opts: DefaultOptions()}
}

// WithPlacementWeighting sets the overall weighting of NoC cost within the
// placer's total cost function.
func (b OptionsBuilder) WithPlacementWeighting(w float64) OptionsBuilder {
	b.opts.PlacementWeighting = w
	return b
}

// WithAggregateBandwidthWeighting sets the aggregate bandwidth term weight.
func (b OptionsBuilder) WithAggregateBandwidthWeighting(w float64) OptionsBuilder {
	b.opts.AggregateBandwidthWeighting = w
	return b
}

// WithLatencyWeighting sets the latency term weight.
func (b OptionsBuilder) WithLatencyWeighting(w float64) OptionsBuilder {
	b.opts.LatencyWeighting = w
	return b
}

// WithLatencyConstraintsWeighting sets the latency overrun term weight.
func (b OptionsBuilder) WithLatencyConstraintsWeighting(w float64) OptionsBuilder {
	b.opts.LatencyConstraintsWeighting = w
	return b
}

// WithCongestionWeighting sets the congestion term weight.
func (b OptionsBuilder) WithCongestionWeighting(w float64) OptionsBuilder {
	b.opts.CongestionWeighting = w
	return b
}

// WithRouterSwapPercentage sets the percentage, 0-100, of placer-proposed
// moves that should target a router-to-router swap.
func (b OptionsBuilder) WithRouterSwapPercentage(p int) OptionsBuilder {
	b.opts.RouterSwapPercentage = p
	return b
}

// Build validates and returns the assembled Options.
func (b OptionsBuilder) Build() Options {
	b.routerSwapPercentageMustBeInRange()

	return b.opts
}

func (b OptionsBuilder) routerSwapPercentageMustBeInRange() {
	if b.opts.RouterSwapPercentage < 0 || b.opts.RouterSwapPercentage > 100 {
		panic("router swap percentage must be between 0 and 100")
	}
}

// LoadEnvOverrides reads NOC_* environment variables, populated optionally
// from a .env file via godotenv, and applies any that are present on top
// of o. Unset variables leave the corresponding field untouched.
func (o Options) LoadEnvOverrides() Options {
	_ = godotenv.Load()

	o.PlacementWeighting = floatEnvOverride("NOC_PLACEMENT_WEIGHTING", o.PlacementWeighting)
	o.AggregateBandwidthWeighting = floatEnvOverride("NOC_AGGREGATE_BANDWIDTH_WEIGHTING", o.AggregateBandwidthWeighting)
	o.LatencyWeighting = floatEnvOverride("NOC_LATENCY_WEIGHTING", o.LatencyWeighting)
	o.LatencyConstraintsWeighting = floatEnvOverride("NOC_LATENCY_CONSTRAINTS_WEIGHTING", o.LatencyConstraintsWeighting)
	o.CongestionWeighting = floatEnvOverride("NOC_CONGESTION_WEIGHTING", o.CongestionWeighting)
	o.RouterSwapPercentage = intEnvOverride("NOC_ROUTER_SWAP_PERCENTAGE", o.RouterSwapPercentage)

	return o
}

func floatEnvOverride(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func intEnvOverride(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
