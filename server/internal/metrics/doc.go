// Package metrics exposes server counters in the Prometheus text format on
// GET /metrics. Collectors live on a private registry so tests and multiple
// servers in one process do not collide.
package metrics
