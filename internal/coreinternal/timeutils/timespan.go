// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package timeutils parses the timespan notation used by live metrics filter
// comparands.
package timeutils // import "github.com/livetel/livemetrics/internal/coreinternal/timeutils"

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimespan parses a duration comparand in "[d.]hh:mm:ss[.fffffff]"
// notation, e.g. "0.00:00:02" or "00:00:00.250". A plain decimal number is
// accepted as milliseconds.
func ParseTimespan(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timespan")
	}
	if !strings.Contains(s, ":") {
		ms, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timespan %q: %w", s, err)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timespan %q: expected [d.]hh:mm:ss", s)
	}

	var days int64
	hoursPart := parts[0]
	if i := strings.Index(hoursPart, "."); i >= 0 {
		d, err := strconv.ParseInt(hoursPart[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timespan %q: bad day component: %w", s, err)
		}
		days = d
		hoursPart = hoursPart[i+1:]
	}

	hours, err := strconv.ParseInt(hoursPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timespan %q: bad hour component: %w", s, err)
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timespan %q: bad minute component: %w", s, err)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timespan %q: bad second component: %w", s, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("invalid timespan %q: component out of range", s)
	}

	total := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return total, nil
}
