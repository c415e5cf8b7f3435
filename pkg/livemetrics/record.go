// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"context"

	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"
)

// RecordSpan aggregates one finished span. It is safe to call from any
// number of goroutines, does no I/O, and never panics into the caller: one
// bad span is logged and dropped, the tracing code path is never interrupted.
func (m *Manager) RecordSpan(span ptrace.Span) {
	p := m.recordingPipeline()
	if p == nil {
		return
	}
	defer m.recoverRecording("span")

	ctx := context.Background()
	data := DataFromSpan(span)
	m.updateInstruments(ctx, p, data)
	m.processTelemetry(p, data)

	// Exception events attached to the span each count as their own
	// telemetry item, independent of the span's success flag.
	events := span.Events()
	for i := 0; i < events.Len(); i++ {
		event := events.At(i)
		if event.Name() != exceptionEventName {
			continue
		}
		exc := ExceptionDataFromEvent(span, event)
		p.instruments.exceptionRate.Add(ctx, 1)
		m.processTelemetry(p, exc)
	}
}

// RecordLogRecord aggregates one emitted log record. Same guarantees as
// RecordSpan.
func (m *Manager) RecordLogRecord(lr plog.LogRecord) {
	p := m.recordingPipeline()
	if p == nil {
		return
	}
	defer m.recoverRecording("log record")

	data := DataFromLogRecord(lr)
	m.updateInstruments(context.Background(), p, data)
	m.processTelemetry(p, data)
}

// recordingPipeline is the hot-path gate: two atomic loads plus a defensive
// instrument check, no locks. It returns nil unless the manager is
// initialized, the backend asked for detailed collection, and every fixed
// instrument exists.
func (m *Manager) recordingPipeline() *pipeline {
	if !m.initialized.Load() || m.CollectionState() != StatePost {
		return nil
	}
	p := m.pipeline.Load()
	if p == nil || !p.instruments.ready() {
		m.logger.Warn("Live metrics instruments not ready, dropping telemetry")
		return nil
	}
	return p
}

func (m *Manager) recoverRecording(kind string) {
	if r := recover(); r != nil {
		m.logger.Warn("Live metrics recording failed",
			zap.String("telemetry", kind), zap.Any("reason", r))
	}
}

func (m *Manager) updateInstruments(ctx context.Context, p *pipeline, data TelemetryData) {
	reg := p.instruments
	switch d := data.(type) {
	case RequestData:
		reg.requestRate.Add(ctx, 1)
		if !d.Success {
			reg.requestFailedRate.Add(ctx, 1)
		}
		reg.requestDuration.Record(ctx, d.DurationMillis)
	case DependencyData:
		reg.dependencyRate.Add(ctx, 1)
		if !d.Success {
			reg.dependencyFailedRate.Add(ctx, 1)
		}
		reg.dependencyDuration.Record(ctx, d.DurationMillis)
	case ExceptionData:
		reg.exceptionRate.Add(ctx, 1)
	case TraceData:
		// Traces have no fixed instrument; they only feed derived metrics
		// and document streams.
	}
}

// processTelemetry runs the filter and projection engines for one normalized
// item, then captures a document when stream filtering matches or no stream
// configured filters for this kind (fail open).
func (m *Manager) processTelemetry(p *pipeline, data TelemetryData) {
	cc := m.collection.Load()
	if cc == nil {
		return
	}

	p.projections.apply(cc.metricsByType[telemetryTypeOf(data)], data)

	streamIDs, matched := cc.matchDocumentStreams(data)
	if !matched {
		return
	}
	doc := documentFromTelemetry(data)
	doc.DocumentStreamIDs = streamIDs
	p.documents.append(doc)
}
