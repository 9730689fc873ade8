/*
Package vip resolves load balancers into VIP records.

A load balancer is declared on a network group and names a provider: either
"external", in which case the VIP is the fixed endpoint for the control
plane's region, or a service component whose servers host the VIP. Provider
servers must all be attached to the same network of the group; a split is
an error because the VIP cannot live on two networks.

One address is allocated per load balancer when shared-address is true (the
default) and one per component otherwise. Allocations use the consumer tag
"vip" so re-runs return the same addresses.

For every served component endpoint with has-vip set, and every role the
load balancer serves, a VIP record is emitted. A TLS-terminated endpoint
advertises its vip-port instead of the backend port. Components pulled in by
a "default" entry lose any role they also get from an explicit entry.

BuildEndpoints then derives, per component, where it binds, how clients
reach it and what it consumes.
*/
package vip
