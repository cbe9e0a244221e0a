/*
Package lineage coordinates access to application histories.

A lineage is the chain of records written under one application id. The
Manager serializes work on a lineage inside the process with reference
counted mutexes and, when a DistributedLocker is configured, across processes
as well. It also exposes read helpers over a TrackingStore for tooling.
*/
package lineage
