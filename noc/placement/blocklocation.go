package placement

// GridLoc is a physical grid location.
type GridLoc struct {
	X, Y, Layer int
}

// BlockLocation maps a cluster to a physical location and whether the
// placer is allowed to move it.
type BlockLocation struct {
	Loc   GridLoc
	Fixed bool
}

// ClusterBlock is a logical netlist block; a subset are router clusters
// mapped onto physical routers.
type ClusterBlock struct {
	ID              ClusterID
	Name            string
	IsRouterCluster bool
}

// BlockLocationProvider is the read-only collaborator mapping cluster ids
// to their current placement (§6). Identity equality of the provider is
// checked by CostHandler.PointsToSameBlockLocs.
type BlockLocationProvider interface {
	Location(cluster ClusterID) BlockLocation
}
