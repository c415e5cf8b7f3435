// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"strconv"
	"sync"

	"github.com/livetel/livemetrics/internal/common/maps"
	"github.com/livetel/livemetrics/internal/common/sanitize"
)

// DocumentType tags the shape of a captured document.
type DocumentType string

const (
	DocumentTypeRequest          DocumentType = "Request"
	DocumentTypeRemoteDependency DocumentType = "RemoteDependency"
	DocumentTypeException        DocumentType = "Exception"
	DocumentTypeTrace            DocumentType = "Trace"
)

// Display limits for captured documents. Documents are diagnostics for a live
// view, not durable records, so oversized payloads are cut rather than kept.
const (
	maxDocumentURLLength      = 2048
	maxDocumentMessageLength  = 32768
	maxDocumentPropertyLength = 8192
	maxDocumentProperties     = 10
)

// Document is a captured telemetry record formatted for live display.
// DocumentStreamIDs names the live-view consumers the document belongs to;
// empty means every stream.
type Document struct {
	Type              DocumentType
	Name              string
	URL               string
	ResponseCode      string
	CommandName       string
	ResultCode        string
	DurationMillis    float64
	ExceptionType     string
	ExceptionMessage  string
	Message           string
	Properties        map[string]string
	DocumentStreamIDs []string
}

// documentFromTelemetry formats one telemetry item for live display.
func documentFromTelemetry(data TelemetryData) Document {
	switch d := data.(type) {
	case RequestData:
		return Document{
			Type:           DocumentTypeRequest,
			Name:           sanitize.String(d.Name),
			URL:            sanitize.Truncated(d.URL, maxDocumentURLLength),
			ResponseCode:   strconv.FormatInt(d.ResponseCode, 10),
			DurationMillis: d.DurationMillis,
			Properties:     documentProperties(d.CustomDimensions),
		}
	case DependencyData:
		return Document{
			Type:           DocumentTypeRemoteDependency,
			Name:           sanitize.String(d.Name),
			CommandName:    sanitize.Truncated(d.Data, maxDocumentURLLength),
			ResultCode:     strconv.FormatInt(d.ResultCode, 10),
			DurationMillis: d.DurationMillis,
			Properties:     documentProperties(d.CustomDimensions),
		}
	case ExceptionData:
		return Document{
			Type:             DocumentTypeException,
			ExceptionType:    sanitize.String(d.Type),
			ExceptionMessage: sanitize.Truncated(d.Message, maxDocumentMessageLength),
			Properties:       documentProperties(d.CustomDimensions),
		}
	case TraceData:
		return Document{
			Type:       DocumentTypeTrace,
			Message:    sanitize.Truncated(d.Message, maxDocumentMessageLength),
			Properties: documentProperties(d.CustomDimensions),
		}
	default:
		return Document{}
	}
}

func documentProperties(dims map[string]string) map[string]string {
	props := maps.CapStringMap(dims, maxDocumentProperties)
	for k, v := range props {
		props[k] = sanitize.Truncated(v, maxDocumentPropertyLength)
	}
	return props
}

// documentBuffer holds documents captured since the last export tick.
type documentBuffer struct {
	mu   sync.Mutex
	docs []Document
}

func newDocumentBuffer() *documentBuffer {
	return &documentBuffer{}
}

func (b *documentBuffer) append(doc Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, doc)
}

// drain returns all buffered documents in append order and clears the
// buffer. Appends racing with a drain land in one tick or the next, never
// nowhere.
func (b *documentBuffer) drain() []Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs := b.docs
	b.docs = nil
	return docs
}
