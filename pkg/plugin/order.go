package plugin

import (
	"fmt"
	"sort"
)

// Order returns the plugins of a phase sorted so that each runs after its
// dependencies. Ties keep registration order. A dependency on a plugin of an
// earlier phase is satisfied by the phase order; one on a later phase is a cycle.
func (r *Registry) Order(phase Phase) ([]Plugin, error) {
	rank := make(map[Phase]int, len(Phases))
	for i, p := range Phases {
		rank[p] = i
	}

	index := make(map[string]int)
	var members []Plugin
	for _, p := range r.plugins {
		if p.Phase() == phase {
			index[p.ID()] = len(members)
			members = append(members, p)
		}
	}

	indegree := make([]int, len(members))
	dependants := make([][]int, len(members))
	for i, p := range members {
		for _, dep := range p.Dependencies() {
			d, ok := r.byID[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknown, p.ID(), dep)
			}
			switch {
			case rank[d.Phase()] < rank[phase]:
				continue
			case rank[d.Phase()] > rank[phase]:
				return nil, fmt.Errorf("%w: %s (%s) depends on %s (%s)", ErrCycle, p.ID(), phase, dep, d.Phase())
			}
			j := index[dep]
			dependants[j] = append(dependants[j], i)
			indegree[i]++
		}
	}

	var ready []int
	for i := range members {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]Plugin, 0, len(members))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, members[i])
		for _, j := range dependants[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(out) != len(members) {
		var stuck []string
		for i, p := range members {
			if indegree[i] > 0 {
				stuck = append(stuck, p.ID())
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return out, nil
}
