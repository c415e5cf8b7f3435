// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentBufferRoundTrip(t *testing.T) {
	buf := newDocumentBuffer()
	for i := 0; i < 5; i++ {
		buf.append(Document{Type: DocumentTypeTrace, Message: strconv.Itoa(i)})
	}

	docs := buf.drain()
	require.Len(t, docs, 5)
	for i, doc := range docs {
		assert.Equal(t, strconv.Itoa(i), doc.Message, "drain must preserve append order")
	}

	assert.Empty(t, buf.drain(), "second drain must be empty")
}

func TestDocumentBufferConcurrentAppend(t *testing.T) {
	buf := newDocumentBuffer()
	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				buf.append(Document{Type: DocumentTypeTrace})
			}
		}()
	}

	var drained int
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	for {
		drained += len(buf.drain())
		select {
		case <-done:
			drained += len(buf.drain())
			assert.Equal(t, writers*perWriter, drained, "no document may be lost across drains")
			return
		default:
		}
	}
}

func TestDocumentFromTelemetry(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		doc := documentFromTelemetry(RequestData{
			Name:           "GET /",
			URL:            "https://example.com",
			ResponseCode:   503,
			DurationMillis: 12,
		})
		assert.Equal(t, DocumentTypeRequest, doc.Type)
		assert.Equal(t, "503", doc.ResponseCode)
		assert.Equal(t, 12.0, doc.DurationMillis)
	})

	t.Run("dependency", func(t *testing.T) {
		doc := documentFromTelemetry(DependencyData{Name: "query", Data: "SELECT 1", ResultCode: 0})
		assert.Equal(t, DocumentTypeRemoteDependency, doc.Type)
		assert.Equal(t, "SELECT 1", doc.CommandName)
	})

	t.Run("exception", func(t *testing.T) {
		doc := documentFromTelemetry(ExceptionData{Type: "ValueError", Message: "boom"})
		assert.Equal(t, DocumentTypeException, doc.Type)
		assert.Equal(t, "ValueError", doc.ExceptionType)
		assert.Equal(t, "boom", doc.ExceptionMessage)
	})

	t.Run("trace strips control characters", func(t *testing.T) {
		doc := documentFromTelemetry(TraceData{Message: "line one\r\nline two"})
		assert.Equal(t, DocumentTypeTrace, doc.Type)
		assert.Equal(t, "line oneline two", doc.Message)
	})
}

func TestDocumentTruncation(t *testing.T) {
	long := strings.Repeat("x", maxDocumentMessageLength+100)
	doc := documentFromTelemetry(TraceData{Message: long})
	assert.Len(t, doc.Message, maxDocumentMessageLength)

	dims := make(map[string]string, maxDocumentProperties+5)
	for i := 0; i < maxDocumentProperties+5; i++ {
		dims["key"+strconv.Itoa(i)] = "v"
	}
	doc = documentFromTelemetry(TraceData{Message: "m", CustomDimensions: dims})
	assert.Len(t, doc.Properties, maxDocumentProperties)
}
