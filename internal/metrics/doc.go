// Package metrics collects session measurements in a private Prometheus
// registry and writes them to a node_exporter textfile at teardown.
package metrics
