// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetricsprocessor // import "github.com/livetel/livemetrics/processor/livemetricsprocessor"

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/processor"

	"github.com/livetel/livemetrics/pkg/livemetrics"
)

const (
	typeStr = "livemetrics"
)

// NewFactory creates the processor.Factory used by the Collector to construct this processor.
// The traces and logs instances built from the same configuration share one
// live metrics manager, so the process reports a single metrics stream.
func NewFactory() processor.Factory {
	managers := &sharedManagers{byConfig: make(map[component.Config]*livemetrics.Manager)}
	return processor.NewFactory(
		component.MustNewType(typeStr),
		createDefaultConfig,
		processor.WithTraces(managers.createTracesProcessor, component.StabilityLevelDevelopment),
		processor.WithLogs(managers.createLogsProcessor, component.StabilityLevelDevelopment),
	)
}

// createDefaultConfig returns the default configuration for this processor.
func createDefaultConfig() component.Config {
	return &Config{}
}

type sharedManagers struct {
	mu       sync.Mutex
	byConfig map[component.Config]*livemetrics.Manager
}

func (s *sharedManagers) get(set processor.Settings, cfg component.Config) *livemetrics.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byConfig[cfg]; ok {
		return m
	}
	m := livemetrics.NewManager(set.Logger)
	s.byConfig[cfg] = m
	return m
}

func (s *sharedManagers) createTracesProcessor(
	_ context.Context,
	set processor.Settings,
	cfg component.Config,
	nextConsumer consumer.Traces,
) (processor.Traces, error) {
	pCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type: expected *Config, got %T", cfg)
	}
	p := newProcessor(pCfg, set.Logger, s.get(set, cfg))
	p.nextTraces = nextConsumer
	return p, nil
}

func (s *sharedManagers) createLogsProcessor(
	_ context.Context,
	set processor.Settings,
	cfg component.Config,
	nextConsumer consumer.Logs,
) (processor.Logs, error) {
	pCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type: expected *Config, got %T", cfg)
	}
	p := newProcessor(pCfg, set.Logger, s.get(set, cfg))
	p.nextLogs = nextConsumer
	return p, nil
}
