/*
Package metrics records bridge call metrics with Prometheus.

Every call through a handle reports its operation name, duration, bytes moved
and the errno handed back to the caller:

	agentfs_bridge_operations_total{operation,status}
	agentfs_bridge_operation_duration_seconds{operation}
	agentfs_bridge_bytes_total{operation}
	agentfs_bridge_errors_total{operation,errno}
	agentfs_bridge_open_handles

The registry is private to the collector. When metrics.enabled is set with a
non-zero port, Start serves it over HTTP at /metrics together with /health
and /debug/operations.
*/
package metrics
