/*
Package observability turns booth lifecycle hooks into Prometheus metrics and
structured log lines.

Metrics registers its collectors on a caller supplied registry and exposes them as
domain.LifecycleHooks; Combine fans one hook set out to several consumers.
*/
package observability
