package model

import "sort"

// HAGroup is a router together with its redundancy peers.
type HAGroup struct {
	Members []RedundancyRouter
}

// GroupOf returns the HA group the router belongs to. A router without HA
// is a group of one.
func GroupOf(r *LogicalRouter) HAGroup {
	members := []RedundancyRouter{{ID: r.ID, Priority: r.HA.Priority}}
	for _, rr := range r.HA.RedundancyRouters {
		if rr.ID == r.ID {
			continue
		}
		members = append(members, rr)
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Priority != members[j].Priority {
			return members[i].Priority > members[j].Priority
		}
		return members[i].ID < members[j].ID
	})
	return HAGroup{Members: members}
}

// Leader returns the member owning outbound translation rules: highest
// priority, ties to the lowest id.
func (g HAGroup) Leader() string {
	if len(g.Members) == 0 {
		return ""
	}
	return g.Members[0].ID
}

// Authoritative reports whether r is the group member that installs NAT and
// static translation commands.
func Authoritative(r *LogicalRouter) bool {
	if !r.HA.Enabled {
		return true
	}
	return GroupOf(r).Leader() == r.ID
}

// EffectivePriority returns the HSRP priority the router announces. Members
// of a redundancy group (and the global router) take the priority recorded
// for them in the group; anyone else uses its own.
func (r *LogicalRouter) EffectivePriority() int {
	if r.Role == RoleHARedundancy || r.Role == RoleGlobal {
		for _, rr := range r.HA.RedundancyRouters {
			if rr.ID == r.ID {
				return rr.Priority
			}
		}
	}
	return r.HA.Priority
}
