/*
Package observability provides tools for monitoring the arbor runtime.

It includes lifecycle hooks that log every step with slog, hooks that record
Prometheus metrics, and an HTTP handler exposing those metrics.
*/
package observability
