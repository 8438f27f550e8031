// Package influxdb provides InfluxDB connectivity for Gray Macro.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, run statistics, and health monitoring.
//
// # Measurements
//
//	macro_runs   tags: macro_id, status      fields: duration_ms, nodes_run, nodes_failed
//	macro_steps  tags: macro_id, node_type   fields: runs, total_ms, avg_ms, max_ms
//
// The macro Runner writes one macro_runs point per run and one
// macro_steps point per step type that executed.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	runner.SetMetrics(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking and batched (batch_size, flush_interval);
// batch errors are reported through SetOnError.
package influxdb
