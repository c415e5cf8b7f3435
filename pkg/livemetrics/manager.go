// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var errNotInitialized = errors.New("live metrics manager is not initialized")

// pipeline bundles every resource built by one successful Initialize. It is
// installed behind an atomic pointer so recording goroutines racing with
// Shutdown either see the whole pipeline or none of it.
type pipeline struct {
	instruments *instrumentRegistry
	documents   *documentBuffer
	projections *projectionStore
	reader      *sdkmetric.ManualReader
	provider    *sdkmetric.MeterProvider
	dataPoint   MonitoringDataPoint
}

// Manager owns the live metrics pipeline for one process. Construct exactly
// one with NewManager at process start and hand it to every call site;
// Initialize and Shutdown serialize on an internal mutex while the recording
// methods only perform atomic loads before doing work.
type Manager struct {
	logger *zap.Logger

	// mu serializes Initialize/Shutdown.
	mu          sync.Mutex
	initialized atomic.Bool
	state       atomic.Int32

	pipeline   atomic.Pointer[pipeline]
	collection atomic.Pointer[compiledConfiguration]

	cancelExport context.CancelFunc
	exportDone   chan struct{}
}

// NewManager returns an uninitialized Manager. Recording is a no-op until
// Initialize succeeds and the backend handshake reaches StatePost.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Initialize builds the monitoring envelope, the instrument registry and,
// when cfg.Exporter is set, the export loop. It is idempotent: a second call
// without an intervening Shutdown returns true without side effects. Any
// setup failure rolls everything back, logs a warning and returns false;
// nothing ever propagates to the caller.
func (m *Manager) Initialize(cfg Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized.Load() {
		return true
	}
	if err := cfg.Validate(); err != nil {
		m.logger.Warn("Invalid live metrics configuration", zap.Error(err))
		return false
	}
	cfg.applyDefaults()

	reader := sdkmetric.NewManualReader(
		sdkmetric.WithTemporalitySelector(func(sdkmetric.InstrumentKind) metricdata.Temporality {
			return metricdata.DeltaTemporality
		}),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.RoleName),
			attribute.String("service.instance.id", cfg.RoleInstance),
		)),
	)

	instruments, err := newInstrumentRegistry(provider.Meter(meterScope), m.logger)
	if err != nil {
		m.logger.Warn("Live metrics initialization failed", zap.Error(err))
		shutdownProvider(provider, m.logger)
		return false
	}

	p := &pipeline{
		instruments: instruments,
		documents:   newDocumentBuffer(),
		projections: newProjectionStore(),
		reader:      reader,
		provider:    provider,
		dataPoint: MonitoringDataPoint{
			RoleName:                       cfg.RoleName,
			RoleInstance:                   cfg.RoleInstance,
			MachineName:                    cfg.MachineName,
			StreamID:                       cfg.StreamID,
			Version:                        Version,
			IsWebApp:                       cfg.IsWebApp,
			PerformanceCollectionSupported: instruments.perfSupported,
		},
	}
	m.collection.Store(compileConfiguration(CollectionConfiguration{}))
	m.pipeline.Store(p)

	if cfg.Exporter != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelExport = cancel
		m.exportDone = make(chan struct{})
		go m.exportLoop(ctx, cfg.Exporter, cfg.ExportInterval, cfg.Retry)
	}

	m.initialized.Store(true)
	m.logger.Info("Live metrics collection initialized",
		zap.String("stream_id", cfg.StreamID),
		zap.String("role_name", cfg.RoleName),
		zap.Duration("export_interval", cfg.ExportInterval),
		zap.Bool("performance_collection", instruments.perfSupported))
	return true
}

// Shutdown stops the export loop and the meter provider. It is idempotent
// and returns false when the manager was never initialized. Resources are
// cleared and the initialized flag reset regardless of whether the provider
// stopped cleanly; the return value reports only that stop step. In-flight
// recordings complete harmlessly; their writes may be lost.
func (m *Manager) Shutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized.Load() {
		return false
	}

	m.initialized.Store(false)
	m.state.Store(int32(StateOffline))

	if m.cancelExport != nil {
		m.cancelExport()
		select {
		case <-m.exportDone:
		case <-time.After(shutdownTimeout):
			m.logger.Warn("Export loop did not stop in time")
		}
		m.cancelExport = nil
		m.exportDone = nil
	}

	ok := true
	if p := m.pipeline.Swap(nil); p != nil {
		p.instruments.unregister()
		ok = shutdownProvider(p.provider, m.logger)
	}
	m.collection.Store(nil)

	m.logger.Info("Live metrics collection shut down", zap.Bool("clean", ok))
	return ok
}

func shutdownProvider(provider *sdkmetric.MeterProvider, logger *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("Meter provider shutdown failed", zap.Error(err))
		return false
	}
	return true
}

// IsInitialized reports whether Initialize completed and Shutdown has not.
func (m *Manager) IsInitialized() bool {
	return m.initialized.Load()
}

// CollectionState returns the current backend handshake state.
func (m *Manager) CollectionState() CollectionState {
	return CollectionState(m.state.Load())
}

// SetCollectionState moves the handshake state machine. Recording does real
// work only in StatePost.
func (m *Manager) SetCollectionState(s CollectionState) {
	old := m.state.Swap(int32(s))
	if CollectionState(old) != s {
		m.logger.Debug("Collection state changed",
			zap.Stringer("from", CollectionState(old)), zap.Stringer("to", s))
	}
}

// DataPoint returns the static process envelope built during Initialize. The
// zero value is returned before initialization.
func (m *Manager) DataPoint() MonitoringDataPoint {
	if p := m.pipeline.Load(); p != nil {
		return p.dataPoint
	}
	return MonitoringDataPoint{}
}

// UpdateConfiguration validates and atomically installs a backend-pushed
// filter and derived-metric configuration. Recording goroutines always see
// either the previous or the new configuration, never a partial one.
func (m *Manager) UpdateConfiguration(cfg CollectionConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p := m.pipeline.Load()
	if !m.initialized.Load() || p == nil {
		return errNotInitialized
	}
	// Seed before installing the configuration: a recording goroutine that
	// sees the new metrics must never have its update discarded by the reset.
	p.projections.seed(cfg.Metrics)
	previous := m.collection.Swap(compileConfiguration(cfg))
	if previous == nil || previous.etag != cfg.ETag {
		m.logger.Info("Collection configuration updated",
			zap.String("etag", cfg.ETag),
			zap.Int("derived_metrics", len(cfg.Metrics)),
			zap.Int("document_streams", len(cfg.DocumentStreams)))
	}
	return nil
}

// DrainDocuments returns all documents captured since the last drain, in
// capture order.
func (m *Manager) DrainDocuments() []Document {
	p := m.pipeline.Load()
	if p == nil {
		return nil
	}
	return p.documents.drain()
}

// CollectSnapshot reads the fixed instruments (resetting their window),
// drains derived metric values and documents, and wraps everything with the
// process envelope.
func (m *Manager) CollectSnapshot(ctx context.Context) (*MetricSnapshot, error) {
	p := m.pipeline.Load()
	if p == nil {
		return nil, errNotInitialized
	}

	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	snap := &MetricSnapshot{
		Timestamp:      time.Now(),
		DataPoint:      p.dataPoint,
		Counters:       make(map[string]int64),
		Durations:      make(map[string]HistogramSummary),
		Gauges:         make(map[string]float64),
		DerivedMetrics: p.projections.collectAndReset(),
	}
	snapshotMetrics(&rm, snap)
	snap.Documents = p.documents.drain()
	return snap, nil
}
