// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterScope = "github.com/livetel/livemetrics"

// Fixed instrument names. Counters reset every export tick (delta
// temporality on the manual reader); histograms report count/sum/min/max per
// tick; gauges report the current process values.
const (
	requestRateName          = "livemetrics.request.rate"
	requestFailedRateName    = "livemetrics.request.failed.rate"
	requestDurationName      = "livemetrics.request.duration"
	dependencyRateName       = "livemetrics.dependency.rate"
	dependencyFailedRateName = "livemetrics.dependency.failed.rate"
	dependencyDurationName   = "livemetrics.dependency.duration"
	exceptionRateName        = "livemetrics.exception.rate"
	processMemoryName        = "livemetrics.process.memory.bytes"
	processCPUName           = "livemetrics.process.cpu.percent"
)

// instrumentRegistry is the fixed set of live metrics instruments, created
// exactly once per successful Initialize.
type instrumentRegistry struct {
	requestRate          metric.Int64Counter
	requestFailedRate    metric.Int64Counter
	requestDuration      metric.Float64Histogram
	dependencyRate       metric.Int64Counter
	dependencyFailedRate metric.Int64Counter
	dependencyDuration   metric.Float64Histogram
	exceptionRate        metric.Int64Counter

	processMemory metric.Int64ObservableGauge
	processCPU    metric.Float64ObservableGauge
	registration  metric.Registration

	// perfSupported is false when the current process handle could not be
	// opened; the gauges then stay unregistered.
	perfSupported bool
}

func newInstrumentRegistry(meter metric.Meter, logger *zap.Logger) (*instrumentRegistry, error) {
	var err error
	reg := &instrumentRegistry{}

	if reg.requestRate, err = meter.Int64Counter(requestRateName,
		metric.WithDescription("Incoming requests observed in the current window")); err != nil {
		return nil, err
	}
	if reg.requestFailedRate, err = meter.Int64Counter(requestFailedRateName,
		metric.WithDescription("Failed incoming requests observed in the current window")); err != nil {
		return nil, err
	}
	if reg.requestDuration, err = meter.Float64Histogram(requestDurationName,
		metric.WithDescription("Incoming request duration"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if reg.dependencyRate, err = meter.Int64Counter(dependencyRateName,
		metric.WithDescription("Outbound dependency calls observed in the current window")); err != nil {
		return nil, err
	}
	if reg.dependencyFailedRate, err = meter.Int64Counter(dependencyFailedRateName,
		metric.WithDescription("Failed outbound dependency calls observed in the current window")); err != nil {
		return nil, err
	}
	if reg.dependencyDuration, err = meter.Float64Histogram(dependencyDurationName,
		metric.WithDescription("Outbound dependency call duration"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if reg.exceptionRate, err = meter.Int64Counter(exceptionRateName,
		metric.WithDescription("Exceptions observed in the current window")); err != nil {
		return nil, err
	}

	if err := reg.registerPerfGauges(meter, logger); err != nil {
		// Live metrics stay usable without process gauges; the data point
		// envelope reports PerformanceCollectionSupported=false instead.
		logger.Warn("Process performance gauges unavailable", zap.Error(err))
	}

	return reg, nil
}

func (reg *instrumentRegistry) registerPerfGauges(meter metric.Meter, logger *zap.Logger) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	if reg.processMemory, err = meter.Int64ObservableGauge(processMemoryName,
		metric.WithDescription("Resident memory of the reporting process"), metric.WithUnit("By")); err != nil {
		return err
	}
	if reg.processCPU, err = meter.Float64ObservableGauge(processCPUName,
		metric.WithDescription("CPU utilization of the reporting process"), metric.WithUnit("%")); err != nil {
		return err
	}
	reg.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if mem, err := proc.MemoryInfo(); err == nil {
			o.ObserveInt64(reg.processMemory, int64(mem.RSS))
		} else {
			logger.Debug("Process memory read failed", zap.Error(err))
		}
		if cpu, err := proc.Percent(0); err == nil {
			o.ObserveFloat64(reg.processCPU, cpu)
		} else {
			logger.Debug("Process CPU read failed", zap.Error(err))
		}
		return nil
	}, reg.processMemory, reg.processCPU)
	if err != nil {
		return err
	}
	reg.perfSupported = true
	return nil
}

// ready reports whether every fixed instrument exists. Recording paths check
// this defensively against partial initialization.
func (reg *instrumentRegistry) ready() bool {
	return reg != nil &&
		reg.requestRate != nil &&
		reg.requestFailedRate != nil &&
		reg.requestDuration != nil &&
		reg.dependencyRate != nil &&
		reg.dependencyFailedRate != nil &&
		reg.dependencyDuration != nil &&
		reg.exceptionRate != nil
}

func (reg *instrumentRegistry) unregister() {
	if reg.registration != nil {
		_ = reg.registration.Unregister()
	}
}
