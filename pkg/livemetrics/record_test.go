// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

func newCollectingManager(t *testing.T) *Manager {
	t.Helper()
	m := newTestManager(t)
	m.SetCollectionState(StatePost)
	return m
}

func serverSpan(durationNanos uint64) ptrace.Span {
	span := ptrace.NewSpan()
	span.SetKind(ptrace.SpanKindServer)
	span.SetName("GET /")
	span.SetStartTimestamp(0)
	span.SetEndTimestamp(pcommon.Timestamp(durationNanos))
	span.Status().SetCode(ptrace.StatusCodeOk)
	return span
}

func TestRecordSpanUpdatesRequestInstruments(t *testing.T) {
	m := newCollectingManager(t)

	m.RecordSpan(serverSpan(50_000_000))

	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counters[requestRateName])
	assert.Zero(t, snap.Counters[requestFailedRateName])

	duration := snap.Durations[requestDurationName]
	assert.Equal(t, uint64(1), duration.Count)
	assert.Equal(t, 50.0, duration.Sum)
	assert.Equal(t, 50.0, duration.Min)
	assert.Equal(t, 50.0, duration.Max)
}

func TestRecordSpanFailedRequest(t *testing.T) {
	m := newCollectingManager(t)

	span := serverSpan(1_000_000)
	span.Status().SetCode(ptrace.StatusCodeError)
	m.RecordSpan(span)

	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counters[requestRateName])
	assert.Equal(t, int64(1), snap.Counters[requestFailedRateName])
}

func TestRecordSpanDependencyInstruments(t *testing.T) {
	m := newCollectingManager(t)

	span := ptrace.NewSpan()
	span.SetKind(ptrace.SpanKindClient)
	span.SetStartTimestamp(0)
	span.SetEndTimestamp(10_000_000)
	m.RecordSpan(span)

	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counters[dependencyRateName])
	assert.Equal(t, uint64(1), snap.Durations[dependencyDurationName].Count)
	assert.Equal(t, 10.0, snap.Durations[dependencyDurationName].Sum)
}

func TestRecordSpanExceptionEvent(t *testing.T) {
	m := newCollectingManager(t)

	span := serverSpan(1_000_000)
	event := span.Events().AppendEmpty()
	event.SetName("exception")
	event.Attributes().PutStr("exception.type", "ValueError")
	event.Attributes().PutStr("exception.message", "boom")
	// Non-exception events are ignored.
	span.Events().AppendEmpty().SetName("message")

	m.RecordSpan(span)

	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counters[exceptionRateName],
		"one exception event must count exactly once regardless of span status")
	assert.Equal(t, int64(1), snap.Counters[requestRateName])
}

func TestRecordLogRecordException(t *testing.T) {
	m := newCollectingManager(t)

	lr := plog.NewLogRecord()
	lr.Attributes().PutStr("exception.type", "OOM")
	lr.Attributes().PutStr("exception.message", "out of memory")
	m.RecordLogRecord(lr)

	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counters[exceptionRateName])
}

func TestRecordCapturesDocumentsFailOpen(t *testing.T) {
	m := newCollectingManager(t)

	// No stream configuration at all: every telemetry kind fails open.
	m.RecordSpan(serverSpan(1_000_000))
	lr := plog.NewLogRecord()
	lr.Body().SetStr("hello")
	m.RecordLogRecord(lr)

	docs := m.DrainDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, DocumentTypeRequest, docs[0].Type)
	assert.Empty(t, docs[0].DocumentStreamIDs, "fail-open documents go to all streams")
	assert.Equal(t, DocumentTypeTrace, docs[1].Type)
}

func TestRecordTagsDocumentStreams(t *testing.T) {
	m := newCollectingManager(t)

	require.NoError(t, m.UpdateConfiguration(CollectionConfiguration{
		ETag: "v1",
		DocumentStreams: []DocumentStreamInfo{
			{
				ID: "failures",
				DocumentFilterGroups: []DocumentFilterConjunctionGroupInfo{{
					TelemetryType: TelemetryTypeRequest,
					Filters: FilterConjunctionGroupInfo{Filters: []FilterInfo{
						{FieldName: FieldSuccess, Predicate: PredicateEqual, Comparand: "false"},
					}},
				}},
			},
			{
				ID: "everything",
				DocumentFilterGroups: []DocumentFilterConjunctionGroupInfo{{
					TelemetryType: TelemetryTypeRequest,
					Filters:       FilterConjunctionGroupInfo{},
				}},
			},
		},
	}))

	m.RecordSpan(serverSpan(1_000_000))

	docs := m.DrainDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"everything"}, docs[0].DocumentStreamIDs,
		"only streams whose filters match may be tagged")

	failed := serverSpan(1_000_000)
	failed.Status().SetCode(ptrace.StatusCodeError)
	m.RecordSpan(failed)

	docs = m.DrainDocuments()
	require.Len(t, docs, 1)
	assert.ElementsMatch(t, []string{"failures", "everything"}, docs[0].DocumentStreamIDs)
}

func TestRecordDropsUnmatchedWhenStreamsConfigured(t *testing.T) {
	m := newCollectingManager(t)

	require.NoError(t, m.UpdateConfiguration(CollectionConfiguration{
		ETag: "v2",
		DocumentStreams: []DocumentStreamInfo{{
			ID: "failures",
			DocumentFilterGroups: []DocumentFilterConjunctionGroupInfo{{
				TelemetryType: TelemetryTypeRequest,
				Filters: FilterConjunctionGroupInfo{Filters: []FilterInfo{
					{FieldName: FieldSuccess, Predicate: PredicateEqual, Comparand: "false"},
				}},
			}},
		}},
	}))

	m.RecordSpan(serverSpan(1_000_000))
	assert.Empty(t, m.DrainDocuments(),
		"a configured stream that does not match must suppress the document")
}

func TestRecordFeedsDerivedMetrics(t *testing.T) {
	m := newCollectingManager(t)

	require.NoError(t, m.UpdateConfiguration(CollectionConfiguration{
		ETag: "v3",
		Metrics: []DerivedMetricInfo{{
			ID:            "request-duration-avg",
			TelemetryType: TelemetryTypeRequest,
			Projection:    ProjectionDuration,
			Aggregation:   AggregationAvg,
		}},
	}))

	m.RecordSpan(serverSpan(10_000_000))
	m.RecordSpan(serverSpan(30_000_000))

	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 20.0, snap.DerivedMetrics["request-duration-avg"])
}

func TestRecordConcurrentWithConfigurationSwap(t *testing.T) {
	m := newCollectingManager(t)

	cfg := CollectionConfiguration{
		ETag: "v1",
		Metrics: []DerivedMetricInfo{{
			ID:            "all-requests",
			TelemetryType: TelemetryTypeRequest,
			Projection:    ProjectionCount,
			Aggregation:   AggregationCount,
		}},
	}
	require.NoError(t, m.UpdateConfiguration(cfg))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.RecordSpan(serverSpan(1_000_000))
			}
		}
	}()
	for i := 0; i < 50; i++ {
		cfg.ETag = "v" + strconv.Itoa(i+2)
		require.NoError(t, m.UpdateConfiguration(cfg))
	}
	close(stop)
	wg.Wait()

	// Discard the raced window, then verify the store is still seeded and
	// counts exactly.
	_, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)

	m.RecordSpan(serverSpan(1_000_000))
	m.RecordSpan(serverSpan(1_000_000))
	snap, err := m.CollectSnapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.DerivedMetrics["all-requests"])
}

func TestRecordAfterShutdownIsHarmless(t *testing.T) {
	m := NewManager(nil)
	require.True(t, m.Initialize(Config{}))
	m.SetCollectionState(StatePost)
	require.True(t, m.Shutdown())

	assert.NotPanics(t, func() { m.RecordSpan(serverSpan(1_000_000)) })
	assert.Empty(t, m.DrainDocuments())
}
