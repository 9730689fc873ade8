package network

import (
	"fmt"

	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// TrackCIDRs compares every network's cidr with the one persisted by the
// previous run, warns about changes and records the current value.
func TrackCIDRs(store storage.Store, m *types.Model, d *diag.Diagnostics) error {
	for _, n := range m.Networks {
		if n.CIDR == "" {
			continue
		}
		raw, ok, err := store.Get(types.NamespaceCIDR, n.Name)
		if err != nil {
			return fmt.Errorf("failed to read cidr of %s: %w", n.Name, err)
		}
		if ok {
			var old string
			if err := storage.Decode(raw, &old); err != nil {
				return fmt.Errorf("cidr of %s: %w", n.Name, err)
			}
			if old == n.CIDR {
				continue
			}
			d.Warnf(Source, "network %s changed cidr from %s to %s", n.Name, old, n.CIDR)
		}
		if err := store.Put(types.NamespaceCIDR, map[string]interface{}{n.Name: n.CIDR}); err != nil {
			return fmt.Errorf("failed to persist cidr of %s: %w", n.Name, err)
		}
	}
	return nil
}
