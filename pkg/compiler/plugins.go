package compiler

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/cuemby/cloudcfg/pkg/artifacts"
	"github.com/cuemby/cloudcfg/pkg/network"
	"github.com/cuemby/cloudcfg/pkg/plugin"
	"github.com/cuemby/cloudcfg/pkg/scheduler"
	"github.com/cuemby/cloudcfg/pkg/security"
	"github.com/cuemby/cloudcfg/pkg/validate"
	"github.com/cuemby/cloudcfg/pkg/vip"
)

// Plugin ids
const (
	PluginCIDR            = "cidr-changes"
	PluginScheduler       = "server-allocation"
	PluginNetworks        = "networks"
	PluginRoutes          = "routes"
	PluginVIPs            = "load-balancers"
	PluginUnusedAddresses = "unused-addresses"
	PluginPrivateData     = "private-data"
	PluginConsistency     = "consistency"
	PluginResolved        = "resolved"
	PluginAddressMap      = "address-map"
	PluginInventory       = "inventory"
	PluginFirewall        = "firewall"
)

// Sources of findings recorded directly by plugins
const (
	SourceAddresses   = "address-allocation"
	SourcePrivateData = "private-data"
)

// DefaultPlugins returns the plugins of a full compile run
func DefaultPlugins() *plugin.Registry {
	r := plugin.NewRegistry()
	r.MustRegister(
		&plugin.Func{Name: PluginCIDR, RunPhase: plugin.PhaseGenerate, Fn: trackCIDRs},
		&plugin.Func{Name: PluginScheduler, RunPhase: plugin.PhaseGenerate, Deps: []string{PluginCIDR}, Fn: allocateServers},
		&plugin.Func{Name: PluginNetworks, RunPhase: plugin.PhaseGenerate, Deps: []string{PluginScheduler}, Fn: resolveNetworks},
		&plugin.Func{Name: PluginRoutes, RunPhase: plugin.PhaseGenerate, Deps: []string{PluginNetworks}, Fn: resolveRoutes},
		&plugin.Func{Name: PluginVIPs, RunPhase: plugin.PhaseGenerate, Deps: []string{PluginNetworks}, Fn: resolveVIPs},
		&plugin.Func{Name: PluginUnusedAddresses, RunPhase: plugin.PhaseGenerate, Deps: []string{PluginNetworks, PluginVIPs}, Fn: sweepAddresses},
		&plugin.Func{Name: PluginPrivateData, RunPhase: plugin.PhaseGenerate, Deps: []string{PluginVIPs}, Fn: privateData},
		&plugin.Func{Name: PluginConsistency, RunPhase: plugin.PhaseValidate, Fn: consistency},
		&plugin.Func{Name: PluginResolved, RunPhase: plugin.PhaseBuild, Fn: build(writeResolved)},
		&plugin.Func{Name: PluginAddressMap, RunPhase: plugin.PhaseBuild, Fn: build(writeAddressMap)},
		&plugin.Func{Name: PluginInventory, RunPhase: plugin.PhaseBuild, Fn: build(writeInventory)},
		&plugin.Func{Name: PluginFirewall, RunPhase: plugin.PhaseBuild, Fn: build(writeFirewall)},
	)
	return r
}

func trackCIDRs(_ context.Context, c *plugin.Context) error {
	return network.TrackCIDRs(c.Store, c.Model, c.Diag)
}

func allocateServers(_ context.Context, c *plugin.Context) error {
	s := scheduler.NewScheduler(c.Model, c.Tree, c.Store, c.Addresses, c.Hostnames, c.Diag,
		scheduler.Config{RemoveDeletedServers: c.Options.RemoveDeletedServers})
	s.OnAllocate = func(group string) {
		if c.Metrics != nil {
			c.Metrics.ServersAllocated.WithLabelValues(group).Inc()
		}
	}
	if err := s.Prepare(); err != nil {
		return err
	}
	return s.Run()
}

func resolveNetworks(_ context.Context, c *plugin.Context) error {
	if len(c.Model.PassThrough.Global) > 0 {
		c.Resolved.Global = c.Model.PassThrough.Global
	}
	return network.NewResolver(c.Model, c.Tree, c.Addresses, c.Hostnames, c.Diag).Resolve(c.Resolved)
}

func resolveRoutes(_ context.Context, c *plugin.Context) error {
	r := network.NewResolver(c.Model, c.Tree, c.Addresses, c.Hostnames, c.Diag)
	r.Routes(c.Resolved)
	r.CheckDependencies(c.Resolved)
	return nil
}

func resolveVIPs(_ context.Context, c *plugin.Context) error {
	if err := vip.NewResolver(c.Model, c.Addresses, c.Hostnames, c.Diag).Resolve(c.Resolved); err != nil {
		return err
	}
	vip.BuildEndpoints(c.Model, c.Resolved)
	return nil
}

// sweepAddresses reports persisted addresses nothing claimed during this run,
// and releases them when asked to
func sweepAddresses(_ context.Context, c *plugin.Context) error {
	for _, rec := range c.Addresses.Unused() {
		if !c.Options.FreeUnusedAddresses {
			c.Diag.Warnf(SourceAddresses, "address %s on %s (%s %s) is no longer used; enable free-unused-addresses to release it",
				rec.Address, rec.Network, rec.UsedBy, rec.Host)
			continue
		}
		if err := c.Addresses.Release(rec.Address); err != nil {
			return err
		}
		c.Diag.Warnf(SourceAddresses, "released unused address %s on %s (%s %s)",
			rec.Address, rec.Network, rec.UsedBy, rec.Host)
	}
	return nil
}

// privateData moves stored secrets to the current key, then makes sure every
// secret of every running component exists
func privateData(_ context.Context, c *plugin.Context) error {
	p, err := security.NewPrivateData(c.Store, c.Options.EncryptionKey, c.Options.PreviousEncryptionKey)
	if err != nil {
		return err
	}
	if _, err := p.Rotate(); err != nil {
		if errors.Is(err, security.ErrDecrypt) {
			c.Diag.Errorf(SourcePrivateData, "%v", err)
			return nil
		}
		return err
	}

	keys := make([]string, 0, len(c.Resolved.Components))
	for k := range c.Resolved.Components {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ce := c.Resolved.Components[key]
		sc, ok := c.Model.Component(componentName(key))
		if !ok || len(sc.Secrets) == 0 {
			continue
		}
		ce.Secrets = make(map[string]string, len(sc.Secrets))
		for _, name := range sc.Secrets {
			value, err := p.Ensure(key + "/" + name)
			if errors.Is(err, security.ErrDecrypt) {
				c.Diag.Errorf(SourcePrivateData, "%v", err)
				continue
			}
			if err != nil {
				return err
			}
			ce.Secrets[name] = value
		}
	}
	return nil
}

// componentName strips the control plane from a "<cp>/<component>" key
func componentName(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

func consistency(_ context.Context, c *plugin.Context) error {
	validate.Run(c.Model, c.Tree, c.Diag)
	return nil
}

// build wraps an artifact writer; nothing is written without an output
// directory or once errors were recorded
func build(write func(w *artifacts.Writer, c *plugin.Context) error) func(context.Context, *plugin.Context) error {
	return func(_ context.Context, c *plugin.Context) error {
		if c.Options.OutputDir == "" {
			return nil
		}
		if c.Diag.HasErrors() {
			c.Logger.Debug().Msg("Skipping artifacts, errors were recorded")
			return nil
		}
		w, err := artifacts.NewWriter(c.Options.OutputDir)
		if err != nil {
			return err
		}
		return write(w, c)
	}
}

func writeResolved(w *artifacts.Writer, c *plugin.Context) error {
	return w.WriteResolved(c.Resolved)
}

func writeAddressMap(w *artifacts.Writer, c *plugin.Context) error {
	return w.WriteAddressMap(c.Resolved, c.Hostnames)
}

func writeInventory(w *artifacts.Writer, c *plugin.Context) error {
	return w.WriteInventory(c.Resolved)
}

func writeFirewall(w *artifacts.Writer, c *plugin.Context) error {
	return w.WriteFirewall(c.Model, c.Resolved)
}
