/*
Package ports defines the driven ports (interfaces) of the arbor engine.

These interfaces decouple the runtime from external implementations, allowing
applications to be tracked in memory, on disk, in Redis or in a SQL database.

# Key Interfaces

  - TrackingStore: persists one Record per (application id, sequence) and loads it back for resume and fork.
  - Lister / Deleter: optional capabilities used by tooling (history, cleanup).
  - DistributedLocker: distributed mutual exclusion so a lineage is driven by one runtime at a time.
*/
package ports
