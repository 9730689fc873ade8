/*
Package types defines the data structures shared by every stage of the compiler.

Three families of types live here:

  - Input model: the declarative documents a user writes (control planes,
    clusters and resource groups, servers, server groups, roles, interface
    models, networks, network groups, load balancers, service components).
    Document is the shape of a single file and Model is the merge of all files
    of a run.
  - Persisted records: AllocationRecord, AddressRecord and PrivateRecord are the
    values kept in the state store between runs, keyed by the Namespace*
    constants.
  - Resolved model: Resolved, ResolvedServer, ServerNetwork, Route, VIP and
    ComponentEndpoints describe the fully allocated topology that builders
    render into deployment artifacts.

Clusters and resource groups share the Cluster type; Kind tells them apart and
drives the defaults returned by Min, Max and Policy:

	cluster:  min 1 (or member-count), max = min, policy strict
	resource: min 0, max unlimited (-1), policy any

All yaml tags use the kebab-case keys of the input documents, so the same
types are used for decoding input and for emitting the resolved model.
*/
package types
