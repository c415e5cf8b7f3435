// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package maps holds string-map helpers shared by the telemetry normalizer
// and the document builder.
package maps // import "github.com/livetel/livemetrics/internal/common/maps"

import (
	extmaps "maps"
	"slices"
	"strings"
)

// MergeStringMaps merges n maps with a later map's keys overriding earlier maps.
func MergeStringMaps(maps ...map[string]string) map[string]string {
	ret := map[string]string{}

	for _, m := range maps {
		extmaps.Copy(ret, m)
	}

	return ret
}

// CloneStringMap makes a shallow copy of a map[string]string.
func CloneStringMap(m map[string]string) map[string]string {
	m2 := make(map[string]string, len(m))
	extmaps.Copy(m2, m)
	return m2
}

// CapStringMap copies m keeping at most limit entries, preferring shorter
// keys so the most addressable properties survive truncation deterministically.
func CapStringMap(m map[string]string, limit int) map[string]string {
	if limit <= 0 || len(m) <= limit {
		return CloneStringMap(m)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return strings.Compare(a, b)
	})
	m2 := make(map[string]string, limit)
	for _, k := range keys[:limit] {
		m2[k] = m[k]
	}
	return m2
}
