// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/livetel/livemetrics/internal/common/maps"
)

// Attribute keys recognized by the normalizer. Both current and legacy
// semantic convention spellings are accepted.
const (
	attrURLFull            = "url.full"
	attrHTTPURL            = "http.url"
	attrHTTPResponseStatus = "http.response.status_code"
	attrHTTPStatusCode     = "http.status_code"
	attrServerAddress      = "server.address"
	attrNetPeerName        = "net.peer.name"
	attrDBSystem           = "db.system"
	attrDBStatement        = "db.statement"
	attrDBQueryText        = "db.query.text"
	attrRPCSystem          = "rpc.system"
	attrMessagingSystem    = "messaging.system"
	attrExceptionType      = "exception.type"
	attrExceptionMessage   = "exception.message"
	attrExceptionStack     = "exception.stacktrace"

	exceptionEventName = "exception"
)

// TelemetryData is the uniform, immutable representation of one recorded
// telemetry item. It is a tagged union over the four variants below; every
// consumer switches exhaustively on the concrete type.
type TelemetryData interface {
	telemetryData()
}

// RequestData is a server-side operation derived from a span of kind server
// or consumer.
type RequestData struct {
	Timestamp        time.Time
	DurationMillis   float64
	Success          bool
	Name             string
	URL              string
	ResponseCode     int64
	CustomDimensions map[string]string
}

// DependencyData is an outbound call derived from any other span kind.
type DependencyData struct {
	Timestamp        time.Time
	DurationMillis   float64
	Success          bool
	Name             string
	Target           string
	Data             string
	Type             string
	ResultCode       int64
	CustomDimensions map[string]string
}

// ExceptionData is derived from an exception span event or from a log record
// carrying exception attributes.
type ExceptionData struct {
	Timestamp        time.Time
	Type             string
	Message          string
	StackTrace       string
	CustomDimensions map[string]string
}

// TraceData is a plain log record.
type TraceData struct {
	Timestamp        time.Time
	Message          string
	CustomDimensions map[string]string
}

func (RequestData) telemetryData()    {}
func (DependencyData) telemetryData() {}
func (ExceptionData) telemetryData()  {}
func (TraceData) telemetryData()      {}

func telemetryTypeOf(data TelemetryData) TelemetryType {
	switch data.(type) {
	case RequestData:
		return TelemetryTypeRequest
	case DependencyData:
		return TelemetryTypeDependency
	case ExceptionData:
		return TelemetryTypeException
	case TraceData:
		return TelemetryTypeTrace
	default:
		return ""
	}
}

// DataFromSpan normalizes a span. Spans of kind server or consumer become
// requests; every other kind becomes a dependency.
func DataFromSpan(span ptrace.Span) TelemetryData {
	attrs := span.Attributes()
	dims := attributesToDimensions(attrs)
	duration := spanDurationMillis(span)
	// Unset and Ok both count as success; only an explicit error status is a
	// failure.
	success := span.Status().Code() != ptrace.StatusCodeError
	url := stringAttr(attrs, attrURLFull, attrHTTPURL)
	statusCode := intAttr(attrs, attrHTTPResponseStatus, attrHTTPStatusCode)

	if span.Kind() == ptrace.SpanKindServer || span.Kind() == ptrace.SpanKindConsumer {
		return RequestData{
			Timestamp:        span.StartTimestamp().AsTime(),
			DurationMillis:   duration,
			Success:          success,
			Name:             span.Name(),
			URL:              url,
			ResponseCode:     statusCode,
			CustomDimensions: dims,
		}
	}
	return DependencyData{
		Timestamp:        span.StartTimestamp().AsTime(),
		DurationMillis:   duration,
		Success:          success,
		Name:             span.Name(),
		Target:           stringAttr(attrs, attrServerAddress, attrNetPeerName),
		Data:             dependencyData(attrs, url),
		Type:             dependencyType(attrs, url),
		ResultCode:       statusCode,
		CustomDimensions: dims,
	}
}

// DataFromLogRecord normalizes a log record. A record carrying both an
// exception type and an exception message becomes an exception; everything
// else becomes a trace.
func DataFromLogRecord(lr plog.LogRecord) TelemetryData {
	attrs := lr.Attributes()
	excType := stringAttr(attrs, attrExceptionType)
	excMessage := stringAttr(attrs, attrExceptionMessage)
	if excType != "" && excMessage != "" {
		return ExceptionData{
			Timestamp:        lr.Timestamp().AsTime(),
			Type:             excType,
			Message:          excMessage,
			StackTrace:       stringAttr(attrs, attrExceptionStack),
			CustomDimensions: attributesToDimensions(attrs),
		}
	}
	return TraceData{
		Timestamp:        lr.Timestamp().AsTime(),
		Message:          lr.Body().AsString(),
		CustomDimensions: attributesToDimensions(attrs),
	}
}

// ExceptionDataFromEvent normalizes an exception event attached to a span.
// The span's dimensions carry over so filters on span attributes still apply;
// event attributes win on conflict.
func ExceptionDataFromEvent(span ptrace.Span, event ptrace.SpanEvent) ExceptionData {
	attrs := event.Attributes()
	return ExceptionData{
		Timestamp:  event.Timestamp().AsTime(),
		Type:       stringAttr(attrs, attrExceptionType),
		Message:    stringAttr(attrs, attrExceptionMessage),
		StackTrace: stringAttr(attrs, attrExceptionStack),
		CustomDimensions: maps.MergeStringMaps(
			attributesToDimensions(span.Attributes()),
			attributesToDimensions(attrs),
		),
	}
}

// spanDurationMillis converts the span's nanosecond timestamps to float64
// milliseconds. An unset end timestamp, or an end before the start, yields 0.
// A zero start is a valid epoch start, not an absence marker.
func spanDurationMillis(span ptrace.Span) float64 {
	start := span.StartTimestamp()
	end := span.EndTimestamp()
	if end == 0 || end < start {
		return 0
	}
	return float64(end-start) / float64(time.Millisecond)
}

func dependencyData(attrs pcommon.Map, url string) string {
	if url != "" {
		return url
	}
	return stringAttr(attrs, attrDBStatement, attrDBQueryText)
}

func dependencyType(attrs pcommon.Map, url string) string {
	if url != "" {
		return "Http"
	}
	if db := stringAttr(attrs, attrDBSystem); db != "" {
		return db
	}
	if ms := stringAttr(attrs, attrMessagingSystem); ms != "" {
		return ms
	}
	if rpc := stringAttr(attrs, attrRPCSystem); rpc != "" {
		return rpc
	}
	return "Dependency"
}

func stringAttr(attrs pcommon.Map, keys ...string) string {
	for _, key := range keys {
		if v, ok := attrs.Get(key); ok {
			if s := v.AsString(); s != "" {
				return s
			}
		}
	}
	return ""
}

func intAttr(attrs pcommon.Map, keys ...string) int64 {
	for _, key := range keys {
		v, ok := attrs.Get(key)
		if !ok {
			continue
		}
		switch v.Type() {
		case pcommon.ValueTypeInt:
			return v.Int()
		case pcommon.ValueTypeDouble:
			return int64(v.Double())
		}
	}
	return 0
}

// attributesToDimensions renders every attribute to a string so filter
// predicates and projections can address them uniformly. Unknown attributes
// are carried along, never an error.
func attributesToDimensions(attrs pcommon.Map) map[string]string {
	dims := make(map[string]string, attrs.Len())
	for key, v := range attrs.All() {
		dims[key] = v.AsString()
	}
	return dims
}
