// Package placement implements the NoC placement cost engine: a coherent
// set of per-traffic-flow routes and per-link bandwidth utilizations for a
// simulated-annealing FPGA placer, the four normalized cost terms derived
// from them, and the speculative evaluate/commit/revert transaction surface
// the annealer drives on every proposed move.
package placement

// RouterID is a dense identifier for a physical NoC router, indexing
// directly into NocModel.Routers.
type RouterID int

// LinkID is a dense identifier for a directed NoC link, indexing directly
// into NocModel.Links.
type LinkID int

// ClusterID is a dense identifier for a logical netlist cluster block.
type ClusterID int

// FlowID is a dense identifier for a traffic flow, indexing directly into
// the collections owned by CostHandler.
type FlowID int
