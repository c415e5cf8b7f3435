// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package livemetricsprocessor taps traces and logs pipelines into the live
// metrics engine. Telemetry always passes through unchanged; aggregation is
// a side effect and never fails the pipeline.
package livemetricsprocessor // import "github.com/livetel/livemetrics/processor/livemetricsprocessor"
