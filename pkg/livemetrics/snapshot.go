// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"time"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// HistogramSummary condenses one histogram instrument for a single export
// window.
type HistogramSummary struct {
	Count uint64
	Sum   float64
	Min   float64
	Max   float64
}

// MetricSnapshot carries everything the exporter ships on one tick: fixed
// instrument values for the window, derived metric values, captured
// documents, and the static process envelope.
type MetricSnapshot struct {
	Timestamp time.Time
	DataPoint MonitoringDataPoint
	// Counters holds per-window deltas keyed by instrument name.
	Counters map[string]int64
	// Durations holds per-window histogram summaries keyed by instrument name.
	Durations map[string]HistogramSummary
	// Gauges holds current values keyed by instrument name.
	Gauges map[string]float64
	// DerivedMetrics holds one value per configured derived metric id.
	DerivedMetrics map[string]float64
	Documents      []Document
}

// snapshotMetrics flattens collected SDK metric data into plain values.
func snapshotMetrics(rm *metricdata.ResourceMetrics, snap *MetricSnapshot) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				snap.Counters[m.Name] = total
			case metricdata.Histogram[float64]:
				var summary HistogramSummary
				for _, dp := range data.DataPoints {
					summary.Count += dp.Count
					summary.Sum += dp.Sum
					if v, ok := dp.Min.Value(); ok && (summary.Min == 0 || v < summary.Min) {
						summary.Min = v
					}
					if v, ok := dp.Max.Value(); ok && v > summary.Max {
						summary.Max = v
					}
				}
				snap.Durations[m.Name] = summary
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					snap.Gauges[m.Name] = float64(dp.Value)
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					snap.Gauges[m.Name] = dp.Value
				}
			}
		}
	}
}
