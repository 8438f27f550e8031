package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRuns  = "macro_runs"
	MeasurementSteps = "macro_steps"
)

// WriteRunMetric records the outcome of one macro run.
//
// This is non-blocking - the point is buffered and written in batches.
// If the client is disconnected, the metric is silently dropped.
//
// Parameters:
//   - macroID: Macro identifier (tag)
//   - status: Run status, e.g. "succeeded", "failed", "cancelled" (tag)
//   - duration: Wall time of the run
//   - nodesRun: Number of nodes executed, root included
//   - nodesFailed: Number of nodes that ended Failed
func (c *Client) WriteRunMetric(macroID, status string, duration time.Duration, nodesRun, nodesFailed int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(runPoint(macroID, status, duration, nodesRun, nodesFailed, time.Now()))
}

// WriteStepMetric records per-type execution totals for one run.
//
// Parameters:
//   - macroID: Macro identifier (tag)
//   - nodeType: Step type tag such as "click" or "loop" (tag)
//   - runs: How many nodes of this type executed
//   - total: Summed wall time of those nodes
//   - maxDur: Longest single execution
func (c *Client) WriteStepMetric(macroID, nodeType string, runs int, total, maxDur time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stepPoint(macroID, nodeType, runs, total, maxDur, time.Now()))
}

// WritePoint writes a generic data point with the current time.
//
// Use this for custom measurements not covered by the specific methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func runPoint(macroID, status string, duration time.Duration, nodesRun, nodesFailed int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRuns,
		map[string]string{
			"macro_id": macroID,
			"status":   status,
		},
		map[string]interface{}{
			"duration_ms":  duration.Milliseconds(),
			"nodes_run":    int64(nodesRun),
			"nodes_failed": int64(nodesFailed),
		},
		at,
	)
}

func stepPoint(macroID, nodeType string, runs int, total, maxDur time.Duration, at time.Time) *write.Point {
	var avg time.Duration
	if runs > 0 {
		avg = total / time.Duration(runs)
	}
	return write.NewPoint(
		MeasurementSteps,
		map[string]string{
			"macro_id":  macroID,
			"node_type": nodeType,
		},
		map[string]interface{}{
			"runs":     int64(runs),
			"total_ms": total.Milliseconds(),
			"avg_ms":   avg.Milliseconds(),
			"max_ms":   maxDur.Milliseconds(),
		},
		at,
	)
}
