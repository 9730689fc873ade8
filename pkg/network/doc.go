/*
Package network attaches allocated servers to their networks and derives the
routing tables between network groups.

# Attachment

A server needs the network groups its service components ask for:

  - groups naming the component in component-endpoints
  - otherwise the groups naming "default" in component-endpoints
  - groups carrying a tag the component lists in network-tags

Its role's interface model decides which groups it can reach. A required
group that is not reachable is an error; for tag requirements the tag's
required flag makes it an error and its expected flag a warning. Forced
network groups are always attached.

For every retained group the concrete network is found by walking the
server's zone up through its parents (topology.Tree.FindNetwork). Networks
with a cidr hand out an address through address.Allocator, reusing the
server's own ip-addr when it falls inside the cidr, and every attachment
gets an alias hostname registered in the run's hostname.Registry.

# Routes

For each network used by at least one server:

	implicit   every other network of the same group
	explicit   every network of each group listed in routes
	default    0.0.0.0/0 when routes lists "default"

Per server, explicit routes to networks the server already reaches directly
or through an implicit route are dropped. CheckDependencies then checks that
each consumer can reach the servers of the components it consumes, warning
when only the default route gets there.
*/
package network
