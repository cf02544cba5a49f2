package placement

import (
	"fmt"
	"io"
)

// WritePlacement writes one line per router cluster block, in the order
// given, as "<name> <layer> <router_id>\n". Grounded on
// write_noc_placement_file.
func WritePlacement(w io.Writer, clusters []ClusterBlock, locs BlockLocationProvider, model *NocModel) error {
	for _, cluster := range clusters {
		if !cluster.IsRouterCluster {
			continue
		}

		loc := locs.Location(cluster.ID)
		router := model.RouterAt(loc.Loc.X, loc.Loc.Y, loc.Loc.Layer)

		if _, err := fmt.Fprintf(w, "%s %d %d\n", cluster.Name, loc.Loc.Layer, router); err != nil {
			return fmt.Errorf("noc: writing placement line for %q: %w", cluster.Name, err)
		}
	}

	return nil
}
