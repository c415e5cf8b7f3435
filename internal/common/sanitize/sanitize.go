// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sanitize prepares captured telemetry text for live display.
package sanitize // import "github.com/livetel/livemetrics/internal/common/sanitize"

import "strings"

// String removes control characters from the parameter. This addresses
// CWE-117: https://cwe.mitre.org/data/definitions/117.html
func String(unsanitized string) string {
	escaped := strings.ReplaceAll(unsanitized, "\n", "")
	return strings.ReplaceAll(escaped, "\r", "")
}

// Truncated sanitizes the parameter and caps it at limit bytes.
func Truncated(unsanitized string, limit int) string {
	s := String(unsanitized)
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
