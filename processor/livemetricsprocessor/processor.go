// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetricsprocessor // import "github.com/livetel/livemetrics/processor/livemetricsprocessor"

import (
	"context"

	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/livetel/livemetrics/pkg/livemetrics"
)

// liveMetricsProcessor feeds every span and log record through the live
// metrics manager and forwards the batch unchanged.
type liveMetricsProcessor struct {
	logger  *zap.Logger
	config  *Config
	manager *livemetrics.Manager

	nextTraces consumer.Traces
	nextLogs   consumer.Logs
}

func newProcessor(cfg *Config, logger *zap.Logger, manager *livemetrics.Manager) *liveMetricsProcessor {
	return &liveMetricsProcessor{
		logger:  logger,
		config:  cfg,
		manager: manager,
	}
}

// Start is invoked during service startup. A failed manager initialization
// leaves the processor as a pure pass-through: live metrics are best effort
// and must never take the pipeline down.
func (p *liveMetricsProcessor) Start(_ context.Context, _ component.Host) error {
	if !p.manager.Initialize(livemetrics.Config{
		RoleName:       p.config.RoleName,
		RoleInstance:   p.config.RoleInstance,
		ExportInterval: p.config.ExportInterval,
		IsWebApp:       p.config.IsWebApp,
	}) {
		p.logger.Warn("Live metrics unavailable, processor runs as pass-through")
	}
	return nil
}

// Shutdown is invoked during service shutdown. The manager is shared between
// the traces and logs instances; Shutdown is idempotent so the second call
// is a no-op.
func (p *liveMetricsProcessor) Shutdown(_ context.Context) error {
	p.manager.Shutdown()
	return nil
}

// Capabilities returns the consumer capabilities of this processor.
func (*liveMetricsProcessor) Capabilities() consumer.Capabilities {
	return consumer.Capabilities{MutatesData: false}
}

// ConsumeTraces records every span in the batch and passes it through.
func (p *liveMetricsProcessor) ConsumeTraces(ctx context.Context, td ptrace.Traces) error {
	rss := td.ResourceSpans()
	for i := 0; i < rss.Len(); i++ {
		sss := rss.At(i).ScopeSpans()
		for j := 0; j < sss.Len(); j++ {
			spans := sss.At(j).Spans()
			for k := 0; k < spans.Len(); k++ {
				p.manager.RecordSpan(spans.At(k))
			}
		}
	}
	return p.nextTraces.ConsumeTraces(ctx, td)
}

// ConsumeLogs records every log record in the batch and passes it through.
func (p *liveMetricsProcessor) ConsumeLogs(ctx context.Context, ld plog.Logs) error {
	rls := ld.ResourceLogs()
	for i := 0; i < rls.Len(); i++ {
		sls := rls.At(i).ScopeLogs()
		for j := 0; j < sls.Len(); j++ {
			records := sls.At(j).LogRecords()
			for k := 0; k < records.Len(); k++ {
				p.manager.RecordLogRecord(records.At(k))
			}
		}
	}
	return p.nextLogs.ConsumeLogs(ctx, ld)
}
