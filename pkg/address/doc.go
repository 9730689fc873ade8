/*
Package address allocates host addresses from network CIDR ranges.

Each network with a CIDR gets a Pool covering [start-address, end-address]
(defaulting to the first and last usable host), minus the gateway. A pool
only materialises addresses that have an owner; everything else is free, so
large IPv6 ranges cost nothing until used.

Ownership comes from three places, in this order of precedence:

 1. persisted records from earlier runs (ip_addresses namespace)
 2. static server addresses (a server's ip-addr inside the CIDR)
 3. allocations made during this run

Allocate is first-fit in ascending numeric order and idempotent: asking again
for the same (UsedBy, Host) returns the address that pair already holds, in
this run or a previous one. Passing Request.Address takes over a specific
address, which must be free, already held by the same consumer, or the static
address of the requesting server. Every successful allocation is written to
the store immediately.

Addresses recovered from state but not reconfirmed by the end of a run are
reported by Unused; the compiler frees them when asked to.
*/
package address
