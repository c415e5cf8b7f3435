// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package livemetrics aggregates spans and log records into live, filtered
// rate/duration metrics and sample documents for near-real-time display.
//
// The engine is best effort: recording never blocks, never propagates errors
// to the instrumented call site, and loses at most the telemetry observed
// during shutdown. Aggregated values reset on every export tick.
package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"
