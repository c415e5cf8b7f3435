// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"strconv"
	"strings"
	"time"

	"github.com/livetel/livemetrics/internal/coreinternal/timeutils"
)

// The filter engine is pure: it reads only the immutable telemetry item and
// the installed configuration snapshot, so it is safe to call from any number
// of recording goroutines.

// matchesAny reports whether at least one conjunction group matches data.
// An empty group list matches everything (fail open) so unfiltered
// deployments keep working.
func matchesAny(groups []FilterConjunctionGroupInfo, data TelemetryData) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		if matches(g, data) {
			return true
		}
	}
	return false
}

// matches reports whether every predicate in the group matches data.
func matches(group FilterConjunctionGroupInfo, data TelemetryData) bool {
	for _, f := range group.Filters {
		if !matchFilter(f, data) {
			return false
		}
	}
	return true
}

func matchFilter(f FilterInfo, data TelemetryData) bool {
	switch f.FieldName {
	case FieldAnyField:
		return matchAnyField(f, data)
	case FieldSuccess:
		success, ok := successOf(data)
		if !ok {
			return false
		}
		want, err := strconv.ParseBool(strings.ToLower(f.Comparand))
		if err != nil {
			return false
		}
		if f.Predicate == PredicateNotEqual {
			return success != want
		}
		return success == want
	case FieldDuration:
		duration, ok := durationOf(data)
		if !ok {
			return false
		}
		comparand, err := timeutils.ParseTimespan(f.Comparand)
		if err != nil {
			return false
		}
		return compareNumeric(f.Predicate, duration, float64(comparand)/float64(time.Millisecond))
	case FieldResponseCode, FieldResultCode:
		code, ok := resultCodeOf(data)
		if !ok {
			return false
		}
		comparand, err := strconv.ParseFloat(f.Comparand, 64)
		if err != nil {
			return false
		}
		return compareNumeric(f.Predicate, float64(code), comparand)
	default:
		if key, ok := strings.CutPrefix(f.FieldName, customDimensionPrefix); ok {
			return matchCustomDimension(f, key, data)
		}
		value, ok := stringFieldOf(f.FieldName, data)
		if !ok {
			return false
		}
		return compareString(f.Predicate, value, f.Comparand)
	}
}

// matchAnyField scans every string field plus all custom dimension values.
// Only Contains/DoesNotContain reach here; validation rejects the rest.
func matchAnyField(f FilterInfo, data TelemetryData) bool {
	contains := anyFieldContains(data, f.Comparand)
	if f.Predicate == PredicateDoesNotContain {
		return !contains
	}
	return contains
}

func anyFieldContains(data TelemetryData, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range stringFieldsOf(data) {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	for _, v := range customDimensionsOf(data) {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func matchCustomDimension(f FilterInfo, key string, data TelemetryData) bool {
	value, ok := customDimensionsOf(data)[key]
	switch f.Predicate {
	case PredicateEqual:
		return ok && value == f.Comparand
	case PredicateNotEqual:
		return !ok || value != f.Comparand
	case PredicateContains:
		return ok && strings.Contains(strings.ToLower(value), strings.ToLower(f.Comparand))
	case PredicateDoesNotContain:
		return !ok || !strings.Contains(strings.ToLower(value), strings.ToLower(f.Comparand))
	default:
		if !ok {
			return false
		}
		lhs, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		rhs, err := strconv.ParseFloat(f.Comparand, 64)
		if err != nil {
			return false
		}
		return compareNumeric(f.Predicate, lhs, rhs)
	}
}

func compareNumeric(p PredicateType, lhs, rhs float64) bool {
	switch p {
	case PredicateEqual:
		return lhs == rhs
	case PredicateNotEqual:
		return lhs != rhs
	case PredicateGreaterThan:
		return lhs > rhs
	case PredicateGreaterThanOrEqual:
		return lhs >= rhs
	case PredicateLessThan:
		return lhs < rhs
	case PredicateLessThanOrEqual:
		return lhs <= rhs
	default:
		return false
	}
}

func compareString(p PredicateType, value, comparand string) bool {
	switch p {
	case PredicateEqual:
		return value == comparand
	case PredicateNotEqual:
		return value != comparand
	case PredicateContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(comparand))
	case PredicateDoesNotContain:
		return !strings.Contains(strings.ToLower(value), strings.ToLower(comparand))
	default:
		return false
	}
}

func successOf(data TelemetryData) (bool, bool) {
	switch d := data.(type) {
	case RequestData:
		return d.Success, true
	case DependencyData:
		return d.Success, true
	case ExceptionData, TraceData:
		return false, false
	default:
		return false, false
	}
}

func durationOf(data TelemetryData) (float64, bool) {
	switch d := data.(type) {
	case RequestData:
		return d.DurationMillis, true
	case DependencyData:
		return d.DurationMillis, true
	case ExceptionData, TraceData:
		return 0, false
	default:
		return 0, false
	}
}

func resultCodeOf(data TelemetryData) (int64, bool) {
	switch d := data.(type) {
	case RequestData:
		return d.ResponseCode, true
	case DependencyData:
		return d.ResultCode, true
	case ExceptionData, TraceData:
		return 0, false
	default:
		return 0, false
	}
}

// stringFieldOf resolves a named string field against the variant that
// carries it. Fields that do not exist on the variant never match.
func stringFieldOf(field string, data TelemetryData) (string, bool) {
	switch d := data.(type) {
	case RequestData:
		switch field {
		case FieldName:
			return d.Name, true
		case FieldURL:
			return d.URL, true
		}
	case DependencyData:
		switch field {
		case FieldName:
			return d.Name, true
		case FieldTarget:
			return d.Target, true
		case FieldData:
			return d.Data, true
		case FieldType:
			return d.Type, true
		}
	case ExceptionData:
		switch field {
		case FieldExceptionType:
			return d.Type, true
		case FieldExceptionMessage:
			return d.Message, true
		case FieldMessage:
			return d.Message, true
		}
	case TraceData:
		if field == FieldMessage {
			return d.Message, true
		}
	}
	return "", false
}

func stringFieldsOf(data TelemetryData) []string {
	switch d := data.(type) {
	case RequestData:
		return []string{d.Name, d.URL, strconv.FormatInt(d.ResponseCode, 10)}
	case DependencyData:
		return []string{d.Name, d.Target, d.Data, d.Type, strconv.FormatInt(d.ResultCode, 10)}
	case ExceptionData:
		return []string{d.Type, d.Message}
	case TraceData:
		return []string{d.Message}
	default:
		return nil
	}
}

func customDimensionsOf(data TelemetryData) map[string]string {
	switch d := data.(type) {
	case RequestData:
		return d.CustomDimensions
	case DependencyData:
		return d.CustomDimensions
	case ExceptionData:
		return d.CustomDimensions
	case TraceData:
		return d.CustomDimensions
	default:
		return nil
	}
}
