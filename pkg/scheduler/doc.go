/*
Package scheduler assigns concrete servers to the member slots of clusters and
resource groups.

The scheduler is the state machine at the heart of a compile run. Every
server in the input model is in exactly one state:

	AVAILABLE ──allocate──▶ ALLOCATED ──server removed──▶ DELETED
	    ▲                       ▲                            │
	    │                       └────────returned────────────┤
	    └──────────────remove-deleted-servers────────────────┘

Allocation records live in the server_allocations namespace of the state
store and are written as soon as a decision is made, so an interrupted run
leaves a state the next run can continue from.

# Prepare

Prepare runs once over the whole model before any group is allocated:

  - a persisted allocation whose cluster or resource group no longer exists
    is an error naming every stranded member
  - a persisted server that is missing from the input is marked DELETED and
    its member id stays reserved; with RemoveDeletedServers its record and
    addresses are purged instead and a warning lists what was freed

# Run

Run walks control planes and their groups in input order. For each group:

 1. persisted ALLOCATED members are restored to their member ids; a member
    outside the group's failure zones is a warning
 2. more restored members than max-count is a warning, nothing is evicted
 3. DELETED servers that reappeared are restored while capacity remains
 4. the search zones start as the group's failure zones (or the control
    plane's); under the strict policy zones already holding a member are
    removed, and the set resets to the full list once it runs empty
 5. new members are found one at a time with topology.Tree.GetServer,
    taking the lowest free member id, until max-count is reached or no
    server is left
 6. fewer members than min-count is an error naming the searched zones
 7. every member's record is persisted as it is bound

Hostnames are synthesized as

	<host-prefix>-<cp-prefix>-<cluster-prefix><member-prefix><N>   clusters
	<host-prefix>-<cp-prefix>-<resource-prefix><NNNN>             resources

and registered in the run's hostname.Registry.

# Usage

	sched := scheduler.NewScheduler(model, tree, store, addresses, hostnames, diags,
		scheduler.Config{RemoveDeletedServers: opts.RemoveDeletedServers})
	if err := sched.Prepare(); err != nil {
		return err
	}
	if err := sched.Run(); err != nil {
		return err
	}
	for _, m := range cluster.Members {
		fmt.Println(m.MemberID, m.ServerID, m.Hostname)
	}

Returned errors are storage failures only; every allocation problem is
recorded in the diag.Diagnostics so one run reports all of them.
*/
package scheduler
