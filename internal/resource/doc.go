// Package resource models the NMOS resource graph mirrored from a registry.
//
// Resources are loosely structured JSON objects. Resource keeps them as
// opaque maps and exposes typed accessors only for the fields Vega needs:
// the id, the version and the node_id/device_id/flow_id relationships.
//
// Store holds one ordered sequence per Collection with at most one record
// per id. Only the discovery engine mutates it; everything else reads
// snapshots.
package resource
