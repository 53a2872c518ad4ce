// Package metrics exposes server counters in the Prometheus text format.
//
// A Collector owns a private registry, so several servers in one process
// never collide. All recording methods are safe on a nil *Collector, which
// is how a server without a metrics port runs.
//
// Metrics:
//   - mockserver_dispatch_total{plane,command,status}: every answered request
//   - mockserver_proxy_total{outcome}: forwarded, vetoed, upstream_error, upstream_timeout
//   - mockserver_upstream_duration_seconds: upstream round-trip latency
//   - mockserver_aborted_requests_total: requests whose body never completed
//   - mockserver_expectations: expectations currently registered
//
// Go runtime and process collectors are registered alongside.
package metrics
