package placement

// NocRouter is a physical router at a grid location.
type NocRouter struct {
	ID      RouterID
	X, Y    int
	Layer   int
	Latency float64
}

// NocLink is a directed edge between two physical routers.
type NocLink struct {
	ID           LinkID
	Source, Sink RouterID
	Bandwidth    float64
	Latency      float64
}

// NocModel is the fixed NoC topology. It is read-only from the core's
// perspective: external collaborators may rebuild it between placer steps,
// but CostHandler never mutates it.
type NocModel struct {
	Routers []NocRouter
	Links   []NocLink

	DefaultRouterLatency float64
	DefaultLinkLatency   float64

	DetailedRouterLatency bool
	DetailedLinkLatency   bool

	routerAtLoc map[[3]int]RouterID
}

// NewNocModel builds a NocModel and indexes routers by grid location for
// RouterAt lookups.
func NewNocModel(routers []NocRouter, links []NocLink, defaultRouterLatency, defaultLinkLatency float64, detailedRouterLatency, detailedLinkLatency bool) *NocModel {
	m := &NocModel{
		Routers:               routers,
		Links:                 links,
		DefaultRouterLatency:  defaultRouterLatency,
		DefaultLinkLatency:    defaultLinkLatency,
		DetailedRouterLatency: detailedRouterLatency,
		DetailedLinkLatency:   detailedLinkLatency,
		routerAtLoc:           make(map[[3]int]RouterID, len(routers)),
	}

	for _, r := range routers {
		m.routerAtLoc[[3]int{r.X, r.Y, r.Layer}] = r.ID
	}

	return m
}

// RouterAt returns the physical router placed at the given grid location.
func (m *NocModel) RouterAt(x, y, layer int) RouterID {
	return m.routerAtLoc[[3]int{x, y, layer}]
}

// Router returns the router with the given id.
func (m *NocModel) Router(id RouterID) NocRouter {
	return m.Routers[id]
}

// Link returns the link with the given id.
func (m *NocModel) Link(id LinkID) NocLink {
	return m.Links[id]
}

// NumRouters returns the number of routers in the topology.
func (m *NocModel) NumRouters() int {
	return len(m.Routers)
}

// NumLinks returns the number of links in the topology.
func (m *NocModel) NumLinks() int {
	return len(m.Links)
}
