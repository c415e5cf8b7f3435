// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"strconv"
	"strings"
	"sync"
)

// projectionStore accumulates derived metric values between export ticks.
// Avg keeps a running sum and count so the mean is exact on export.
type projectionStore struct {
	mu     sync.Mutex
	values map[string]*derivedValue
}

type derivedValue struct {
	aggregation AggregationType
	count       int64
	sum         float64
	min         float64
	max         float64
}

func newProjectionStore() *projectionStore {
	return &projectionStore{values: make(map[string]*derivedValue)}
}

// seed registers every configured metric id so the next export reports a zero
// for metrics that matched nothing during the window. Called on every
// configuration swap; discards accumulations of the previous configuration.
func (s *projectionStore) seed(metrics []DerivedMetricInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]*derivedValue, len(metrics))
	for _, mi := range metrics {
		s.values[mi.ID] = &derivedValue{aggregation: mi.Aggregation}
	}
}

// apply updates the accumulator of every derived metric whose filters match
// data. An unparseable projection value skips that single update and nothing
// else.
func (s *projectionStore) apply(metrics []DerivedMetricInfo, data TelemetryData) {
	for _, mi := range metrics {
		if !matchesAny(mi.FilterGroups, data) {
			continue
		}
		value, ok := projectionValue(mi, data)
		if !ok {
			continue
		}
		s.update(mi, value)
	}
}

func (s *projectionStore) update(mi DerivedMetricInfo, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dv := s.values[mi.ID]
	if dv == nil {
		dv = &derivedValue{aggregation: mi.Aggregation}
		s.values[mi.ID] = dv
	}
	if dv.count == 0 {
		dv.min = value
		dv.max = value
	} else {
		dv.min = min(dv.min, value)
		dv.max = max(dv.max, value)
	}
	dv.count++
	dv.sum += value
}

// collectAndReset returns the aggregate value per metric id and empties the
// window. Metrics that matched nothing report zero.
func (s *projectionStore) collectAndReset() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.values))
	for id, dv := range s.values {
		out[id] = dv.value()
		s.values[id] = &derivedValue{aggregation: dv.aggregation}
	}
	return out
}

func (dv *derivedValue) value() float64 {
	if dv.count == 0 {
		return 0
	}
	switch dv.aggregation {
	case AggregationCount:
		return float64(dv.count)
	case AggregationSum:
		return dv.sum
	case AggregationAvg:
		return dv.sum / float64(dv.count)
	case AggregationMin:
		return dv.min
	case AggregationMax:
		return dv.max
	default:
		return 0
	}
}

// projectionValue resolves the projected field of data. Count() is always 1;
// Duration only exists on requests and dependencies; custom dimension
// projections must parse as a number.
func projectionValue(mi DerivedMetricInfo, data TelemetryData) (float64, bool) {
	switch {
	case mi.Projection == ProjectionCount:
		return 1, true
	case mi.Projection == ProjectionDuration:
		return durationOf(data)
	default:
		key, ok := strings.CutPrefix(mi.Projection, customDimensionPrefix)
		if !ok {
			return 0, false
		}
		raw, ok := customDimensionsOf(data)[key]
		if !ok {
			return 0, false
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return value, true
	}
}
