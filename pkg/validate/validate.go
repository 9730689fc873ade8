// Package validate sweeps the input model for consistency problems. Every
// check runs to completion and records its findings; none stops the others.
package validate

import (
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// reporter records findings under one check's name
type reporter struct {
	d      *diag.Diagnostics
	source string
}

func (r reporter) errorf(format string, args ...interface{}) {
	r.d.Errorf(r.source, format, args...)
}

func (r reporter) warnf(format string, args ...interface{}) {
	r.d.Warnf(r.source, format, args...)
}

type check struct {
	name string
	run  func(m *types.Model, tree *topology.Tree, r reporter)
}

// Sources of the findings, one per check
const (
	SourceDuplicates    = "duplicate-names"
	SourcePrefixes      = "prefixes"
	SourcePolicy        = "allocation-policy"
	SourceReferences    = "references"
	SourceCIDR          = "cidr"
	SourceNetworkGroups = "network-groups"
	SourceServerGroups  = "server-groups"
	SourceOrphans       = "orphan-servers"
)

var checks = []check{
	{name: SourceDuplicates, run: duplicateNames},
	{name: SourcePrefixes, run: prefixes},
	{name: SourcePolicy, run: allocationPolicies},
	{name: SourceReferences, run: references},
	{name: SourceCIDR, run: cidrs},
	{name: SourceNetworkGroups, run: emptyNetworkGroups},
	{name: SourceServerGroups, run: serverGroups},
	{name: SourceOrphans, run: orphanServers},
}

// Run executes every check against the model
func Run(m *types.Model, tree *topology.Tree, d *diag.Diagnostics) {
	for _, c := range checks {
		c.run(m, tree, reporter{d: d, source: c.name})
	}
}

// dupes reports each name that occurs more than once, once
func dupes(r reporter, kind string, names []string) {
	seen := make(map[string]int)
	for _, n := range names {
		seen[n]++
		if seen[n] == 2 {
			r.errorf("duplicate %s %q", kind, n)
		}
	}
}
