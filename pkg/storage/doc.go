/*
Package storage provides the persisted state store of the compiler.

State is a set of named documents (namespaces) such as "ip_addresses",
"server_allocations", "cidr" and "private_data". Each document is a YAML
mapping; keys passed to Get and Delete walk nested mappings:

	store.Put("server_allocations", map[string]interface{}{
		"server-01": types.AllocationRecord{State: types.ServerAllocated, ...},
	})
	raw, ok, err := store.Get("server_allocations", "server-01")
	var rec types.AllocationRecord
	err = storage.Decode(raw, &rec)

Put merges top-level keys into the existing document and immediately rewrites
it. Callers persist every allocation decision as it is made, so a run that
aborts halfway leaves a consistent partial state for the next run.

# Backends

  - FileStore: <dir>/<namespace>.yml, rewritten through temp file + rename.
    A missing file reads as an empty document. This is the default.
  - BoltStore: <dir>/state.db, one bucket per namespace and one YAML value per
    top-level key.
  - MemoryStore: no persistence; used by tests and by `cloudcfg validate`,
    which snapshots the on-disk state so a dry run never writes.

There is no locking. The compiler assumes a single writer per state
directory; two concurrent runs against the same directory are unsupported.
*/
package storage
