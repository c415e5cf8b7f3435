// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livetel/livemetrics/internal/coreinternal/timeutils"
)

const (
	defaultExportInterval = time.Second

	// Version is reported in the MonitoringDataPoint envelope.
	Version = "0.1.0"
)

// Config configures a Manager. The zero value is usable: defaults are applied
// during Initialize.
type Config struct {
	// RoleName identifies the logical service this process belongs to.
	// Defaults to the executable name.
	RoleName string `mapstructure:"role_name"`
	// RoleInstance identifies this process within the role. Defaults to the
	// machine name.
	RoleInstance string `mapstructure:"role_instance"`
	// MachineName defaults to os.Hostname.
	MachineName string `mapstructure:"machine_name"`
	// StreamID uniquely identifies this process to the live metrics backend.
	// Defaults to a random UUID.
	StreamID string `mapstructure:"stream_id"`
	// IsWebApp marks the process as a managed web application host.
	IsWebApp bool `mapstructure:"is_web_app"`
	// ExportInterval is the cadence of the export tick. Default is 1s.
	ExportInterval time.Duration `mapstructure:"export_interval"`
	// Retry controls backoff of the export loop after a failed export.
	Retry RetryConfig `mapstructure:"retry"`

	// Exporter receives a snapshot on every export tick and returns the
	// backend handshake result. When nil no export loop is started and the
	// caller drains snapshots itself.
	Exporter Exporter `mapstructure:"-"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ExportInterval < 0 {
		return errors.New("export_interval must not be negative")
	}
	return c.Retry.Validate()
}

func (c *Config) applyDefaults() {
	if c.MachineName == "" {
		if host, err := os.Hostname(); err == nil {
			c.MachineName = host
		} else {
			c.MachineName = "unknown"
		}
	}
	if c.RoleName == "" {
		c.RoleName = processName()
	}
	if c.RoleInstance == "" {
		c.RoleInstance = c.MachineName
	}
	if c.StreamID == "" {
		c.StreamID = uuid.NewString()
	}
	if c.ExportInterval == 0 {
		c.ExportInterval = defaultExportInterval
	}
	c.Retry.applyDefaults()
}

func processName() string {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		return "unknown"
	}
	parts := strings.Split(exe, string(os.PathSeparator))
	return parts[len(parts)-1]
}

// RetryConfig defines backoff applied by the export loop after a failed
// export. The backoff is exponential starting at InitialInterval and capped
// at MaxInterval.
type RetryConfig struct {
	// InitialInterval is the extra delay after the first failed export.
	// Default is 1 second.
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	// MaxInterval is the upper bound on the backoff interval. Default is 30
	// seconds.
	MaxInterval time.Duration `mapstructure:"max_interval"`
	// MaxElapsedTime is how long exports may keep failing before the manager
	// drops back to the offline state and restarts the handshake. It never
	// drops back if MaxElapsedTime == 0. Default is 1 minute.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`
}

// Validate checks the retry configuration for errors.
func (c *RetryConfig) Validate() error {
	if c.InitialInterval < 0 || c.MaxInterval < 0 || c.MaxElapsedTime < 0 {
		return errors.New("retry intervals must not be negative")
	}
	return nil
}

func (c *RetryConfig) applyDefaults() {
	if c.InitialInterval == 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.MaxElapsedTime == 0 {
		c.MaxElapsedTime = time.Minute
	}
}

// MonitoringDataPoint describes the reporting process. It is built once
// during Initialize and shared read-only with the exporter on every tick.
type MonitoringDataPoint struct {
	RoleName     string
	RoleInstance string
	MachineName  string
	StreamID     string
	Version      string
	IsWebApp     bool
	// PerformanceCollectionSupported is false when process memory/CPU gauges
	// could not be wired for this platform.
	PerformanceCollectionSupported bool
}

// TelemetryType tags the variants of TelemetryData and selects which
// telemetry a filter or derived metric applies to.
type TelemetryType string

const (
	TelemetryTypeRequest    TelemetryType = "Request"
	TelemetryTypeDependency TelemetryType = "Dependency"
	TelemetryTypeException  TelemetryType = "Exception"
	TelemetryTypeTrace      TelemetryType = "Trace"
)

// PredicateType is the comparison operator of a single filter.
type PredicateType string

const (
	PredicateEqual              PredicateType = "Equal"
	PredicateNotEqual           PredicateType = "NotEqual"
	PredicateGreaterThan        PredicateType = "GreaterThan"
	PredicateGreaterThanOrEqual PredicateType = "GreaterThanOrEqual"
	PredicateLessThan           PredicateType = "LessThan"
	PredicateLessThanOrEqual    PredicateType = "LessThanOrEqual"
	PredicateContains           PredicateType = "Contains"
	PredicateDoesNotContain     PredicateType = "DoesNotContain"
)

// AggregationType is the operator applied by a derived metric projection.
type AggregationType string

const (
	AggregationCount AggregationType = "Count"
	AggregationSum   AggregationType = "Sum"
	AggregationAvg   AggregationType = "Avg"
	AggregationMin   AggregationType = "Min"
	AggregationMax   AggregationType = "Max"
)

// Well-known filter field names. CustomDimensions entries are addressed as
// "CustomDimensions.<key>" and FieldAnyField scans every string field.
const (
	FieldAnyField         = "*"
	FieldSuccess          = "Success"
	FieldDuration         = "Duration"
	FieldName             = "Name"
	FieldURL              = "Url"
	FieldResponseCode     = "ResponseCode"
	FieldResultCode       = "ResultCode"
	FieldTarget           = "Target"
	FieldData             = "Data"
	FieldType             = "Type"
	FieldMessage          = "Message"
	FieldExceptionType    = "Exception.Type"
	FieldExceptionMessage = "Exception.Message"

	customDimensionPrefix = "CustomDimensions."
)

// Projection field names. Anything else must be a CustomDimensions path.
const (
	ProjectionCount    = "Count()"
	ProjectionDuration = "Duration"
)

// FilterInfo is one field-level predicate.
type FilterInfo struct {
	FieldName string
	Predicate PredicateType
	Comparand string
}

// FilterConjunctionGroupInfo is an AND-group of predicates. A group matches
// only if every predicate in it matches.
type FilterConjunctionGroupInfo struct {
	Filters []FilterInfo
}

// DerivedMetricInfo is a backend-supplied aggregation specification.
type DerivedMetricInfo struct {
	ID            string
	TelemetryType TelemetryType
	// FilterGroups are OR'd together; empty means the metric applies to all
	// telemetry of the given kind.
	FilterGroups []FilterConjunctionGroupInfo
	// Projection names the source field: ProjectionCount, ProjectionDuration
	// or a "CustomDimensions.<key>" path.
	Projection  string
	Aggregation AggregationType
}

// DocumentFilterConjunctionGroupInfo scopes one conjunction group of a
// document stream to a telemetry kind.
type DocumentFilterConjunctionGroupInfo struct {
	TelemetryType TelemetryType
	Filters       FilterConjunctionGroupInfo
}

// DocumentStreamInfo identifies one live-view consumer and the filters that
// select documents for it.
type DocumentStreamInfo struct {
	ID                   string
	DocumentFilterGroups []DocumentFilterConjunctionGroupInfo
}

// CollectionConfiguration is the full filter and derived-metric configuration
// pushed by the backend. It replaces the previous configuration atomically.
type CollectionConfiguration struct {
	ETag            string
	Metrics         []DerivedMetricInfo
	DocumentStreams []DocumentStreamInfo
}

// Validate rejects configurations the filter engine cannot evaluate so the
// recording hot path never sees an invalid filter.
func (c *CollectionConfiguration) Validate() error {
	var errs []error
	for _, mi := range c.Metrics {
		if mi.ID == "" {
			errs = append(errs, errors.New("derived metric with empty id"))
			continue
		}
		if err := validateTelemetryType(mi.TelemetryType); err != nil {
			errs = append(errs, fmt.Errorf("metric %q: %w", mi.ID, err))
		}
		if err := validateProjection(mi); err != nil {
			errs = append(errs, fmt.Errorf("metric %q: %w", mi.ID, err))
		}
		for _, g := range mi.FilterGroups {
			if err := validateFilterGroup(g); err != nil {
				errs = append(errs, fmt.Errorf("metric %q: %w", mi.ID, err))
			}
		}
	}
	for _, ds := range c.DocumentStreams {
		if ds.ID == "" {
			errs = append(errs, errors.New("document stream with empty id"))
			continue
		}
		for _, dg := range ds.DocumentFilterGroups {
			if err := validateTelemetryType(dg.TelemetryType); err != nil {
				errs = append(errs, fmt.Errorf("stream %q: %w", ds.ID, err))
				continue
			}
			if err := validateFilterGroup(dg.Filters); err != nil {
				errs = append(errs, fmt.Errorf("stream %q: %w", ds.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func validateTelemetryType(t TelemetryType) error {
	switch t {
	case TelemetryTypeRequest, TelemetryTypeDependency, TelemetryTypeException, TelemetryTypeTrace:
		return nil
	default:
		return fmt.Errorf("unknown telemetry type %q", t)
	}
}

func validateProjection(mi DerivedMetricInfo) error {
	switch {
	case mi.Projection == ProjectionCount, mi.Projection == ProjectionDuration:
	case strings.HasPrefix(mi.Projection, customDimensionPrefix):
	default:
		return fmt.Errorf("unknown projection %q", mi.Projection)
	}
	switch mi.Aggregation {
	case AggregationCount, AggregationSum, AggregationAvg, AggregationMin, AggregationMax:
		return nil
	default:
		return fmt.Errorf("unknown aggregation %q", mi.Aggregation)
	}
}

func validateFilterGroup(g FilterConjunctionGroupInfo) error {
	for _, f := range g.Filters {
		if err := validateFilter(f); err != nil {
			return err
		}
	}
	return nil
}

func validateFilter(f FilterInfo) error {
	switch f.FieldName {
	case "":
		return errors.New("filter with empty field name")
	case FieldAnyField:
		if f.Predicate != PredicateContains && f.Predicate != PredicateDoesNotContain {
			return fmt.Errorf("field %q only supports Contains/DoesNotContain, got %q", f.FieldName, f.Predicate)
		}
	case FieldSuccess:
		if f.Predicate != PredicateEqual && f.Predicate != PredicateNotEqual {
			return fmt.Errorf("field Success only supports Equal/NotEqual, got %q", f.Predicate)
		}
		if _, err := strconv.ParseBool(strings.ToLower(f.Comparand)); err != nil {
			return fmt.Errorf("field Success requires a boolean comparand, got %q", f.Comparand)
		}
	case FieldDuration:
		if !isOrderingPredicate(f.Predicate) {
			return fmt.Errorf("field Duration does not support predicate %q", f.Predicate)
		}
		if _, err := timeutils.ParseTimespan(f.Comparand); err != nil {
			return fmt.Errorf("field Duration: %w", err)
		}
	case FieldResponseCode, FieldResultCode:
		if !isOrderingPredicate(f.Predicate) {
			return fmt.Errorf("field %s does not support predicate %q", f.FieldName, f.Predicate)
		}
		if _, err := strconv.ParseFloat(f.Comparand, 64); err != nil {
			return fmt.Errorf("field %s requires a numeric comparand, got %q", f.FieldName, f.Comparand)
		}
	case FieldName, FieldURL, FieldTarget, FieldData, FieldType, FieldMessage,
		FieldExceptionType, FieldExceptionMessage:
		if !isStringPredicate(f.Predicate) {
			return fmt.Errorf("field %s does not support predicate %q", f.FieldName, f.Predicate)
		}
	default:
		if !strings.HasPrefix(f.FieldName, customDimensionPrefix) {
			return fmt.Errorf("unknown filter field %q", f.FieldName)
		}
		if !isKnownPredicate(f.Predicate) {
			return fmt.Errorf("field %s: unknown predicate %q", f.FieldName, f.Predicate)
		}
	}
	return nil
}

func isOrderingPredicate(p PredicateType) bool {
	switch p {
	case PredicateEqual, PredicateNotEqual, PredicateGreaterThan,
		PredicateGreaterThanOrEqual, PredicateLessThan, PredicateLessThanOrEqual:
		return true
	default:
		return false
	}
}

func isStringPredicate(p PredicateType) bool {
	switch p {
	case PredicateEqual, PredicateNotEqual, PredicateContains, PredicateDoesNotContain:
		return true
	default:
		return false
	}
}

func isKnownPredicate(p PredicateType) bool {
	return isOrderingPredicate(p) || p == PredicateContains || p == PredicateDoesNotContain
}

// compiledConfiguration is the immutable, pre-indexed form of a
// CollectionConfiguration installed behind an atomic pointer. Recording
// goroutines only ever read it.
type compiledConfiguration struct {
	etag          string
	metricsByType map[TelemetryType][]DerivedMetricInfo
	// streamFilters maps telemetry type -> stream id -> OR'd filter groups.
	streamFilters map[TelemetryType]map[string][]FilterConjunctionGroupInfo
}

func compileConfiguration(c CollectionConfiguration) *compiledConfiguration {
	cc := &compiledConfiguration{
		etag:          c.ETag,
		metricsByType: make(map[TelemetryType][]DerivedMetricInfo),
		streamFilters: make(map[TelemetryType]map[string][]FilterConjunctionGroupInfo),
	}
	for _, mi := range c.Metrics {
		cc.metricsByType[mi.TelemetryType] = append(cc.metricsByType[mi.TelemetryType], mi)
	}
	for _, ds := range c.DocumentStreams {
		for _, dg := range ds.DocumentFilterGroups {
			byStream := cc.streamFilters[dg.TelemetryType]
			if byStream == nil {
				byStream = make(map[string][]FilterConjunctionGroupInfo)
				cc.streamFilters[dg.TelemetryType] = byStream
			}
			byStream[ds.ID] = append(byStream[ds.ID], dg.Filters)
		}
	}
	return cc
}

// matchDocumentStreams returns the stream ids whose filters match data. When
// no stream configured filters for this telemetry kind the result is
// (nil, true): fail open, the document goes to all streams.
func (cc *compiledConfiguration) matchDocumentStreams(data TelemetryData) ([]string, bool) {
	byStream := cc.streamFilters[telemetryTypeOf(data)]
	if len(byStream) == 0 {
		return nil, true
	}
	var ids []string
	for id, groups := range byStream {
		if matchesAny(groups, data) {
			ids = append(ids, id)
		}
	}
	return ids, len(ids) > 0
}
