// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Exporter is the backend sink polled by the export loop. Export ships one
// snapshot and returns the backend's handshake response: the collection
// state to move to and, when the backend rolled a new filter configuration,
// the configuration to install.
//
// Implementations own network delivery and any wire format; the engine never
// performs I/O on the recording path.
type Exporter interface {
	Export(ctx context.Context, snapshot *MetricSnapshot) (ExportResult, error)
}

// ExportResult is the backend handshake response for one export.
type ExportResult struct {
	State CollectionState
	// Configuration, when non-nil, replaces the installed filter and
	// derived-metric configuration.
	Configuration *CollectionConfiguration
}

type nopExporter struct{}

// NewNopExporter returns an Exporter that acknowledges every snapshot and
// keeps the engine in the detailed collection state.
func NewNopExporter() Exporter {
	return nopExporter{}
}

func (nopExporter) Export(context.Context, *MetricSnapshot) (ExportResult, error) {
	return ExportResult{State: StatePost}, nil
}

// exportLoop ticks every ExportInterval, ships a snapshot and applies the
// handshake result. A failed export delays the next attempt with exponential
// backoff; once failures persist past Retry.MaxElapsedTime the manager drops
// back to the offline state and restarts the handshake from scratch.
func (m *Manager) exportLoop(ctx context.Context, exporter Exporter, interval time.Duration, retry RetryConfig) {
	done := m.exportDone
	defer close(done)

	backoff := retry.InitialInterval
	var failingSince time.Time

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		snapshot, err := m.CollectSnapshot(ctx)
		if err == nil {
			var result ExportResult
			result, err = exporter.Export(ctx, snapshot)
			if err == nil {
				m.applyExportResult(result)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if failingSince.IsZero() {
				failingSince = time.Now()
			}
			if retry.MaxElapsedTime > 0 && time.Since(failingSince) > retry.MaxElapsedTime {
				m.logger.Warn("Export kept failing, restarting collection handshake",
					zap.Duration("failing_for", time.Since(failingSince)), zap.Error(err))
				m.SetCollectionState(StateOffline)
				failingSince = time.Now()
			} else {
				m.logger.Debug("Export failed", zap.Duration("backoff", backoff), zap.Error(err))
			}
			timer.Reset(interval + backoff)
			backoff = min(backoff*2, retry.MaxInterval)
			continue
		}

		failingSince = time.Time{}
		backoff = retry.InitialInterval
		timer.Reset(interval)
	}
}

func (m *Manager) applyExportResult(result ExportResult) {
	m.SetCollectionState(result.State)
	if result.Configuration == nil {
		return
	}
	if err := m.UpdateConfiguration(*result.Configuration); err != nil {
		m.logger.Warn("Rejected collection configuration from backend",
			zap.String("etag", result.Configuration.ETag), zap.Error(err))
	}
}
