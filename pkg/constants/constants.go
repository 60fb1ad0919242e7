// Package constants defines system-wide constants for the fincore risk service.
// This package provides type-safe constant definitions used across all modules.
package constants

import (
	"strings"
	"time"
)

// ================================================================================
// Risk Dimension Constants
// ================================================================================

// Dimension is one named axis of risk.
type Dimension string

const (
	// DimensionOverall is the aggregated score. It is never supplied as input.
	DimensionOverall Dimension = "overall"

	// DimensionCredit covers counterparty and loan book quality
	DimensionCredit Dimension = "credit"

	// DimensionLiquidity covers funding and cash coverage
	DimensionLiquidity Dimension = "liquidity"

	// DimensionMarket covers trading book and FX exposure
	DimensionMarket Dimension = "market"

	// DimensionOperational covers incidents, breaches and licensing
	DimensionOperational Dimension = "operational"

	// DimensionCapitalAdequacy covers solvency and leverage
	DimensionCapitalAdequacy Dimension = "capitalAdequacy"
)

// ScoredDimensions lists the five input dimensions in their canonical evaluation order.
var ScoredDimensions = []Dimension{
	DimensionCredit,
	DimensionLiquidity,
	DimensionMarket,
	DimensionOperational,
	DimensionCapitalAdequacy,
}

// IsScored reports whether d is one of the five input dimensions.
func (d Dimension) IsScored() bool {
	for _, s := range ScoredDimensions {
		if s == d {
			return true
		}
	}
	return false
}

// ParseDimension resolves a dimension name case-insensitively. Config loaders
// lower-case map keys, so "capitaladequacy" must resolve to DimensionCapitalAdequacy.
func ParseDimension(s string) (Dimension, bool) {
	for _, d := range append([]Dimension{DimensionOverall}, ScoredDimensions...) {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, true
		}
	}
	return "", false
}

// ================================================================================
// Score Bounds
// ================================================================================

const (
	// MinScore is the lowest possible risk score
	MinScore = 0

	// MaxScore is the highest possible risk score
	MaxScore = 100

	// DefaultFallbackScore is substituted for a dimension whose indicators cannot be normalized.
	// It sits mid-scale so a degraded dimension neither hides nor inflates risk.
	DefaultFallbackScore = 50
)

// ================================================================================
// Trend Constants
// ================================================================================

// Trend is the direction of the overall score since the prior snapshot.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// ================================================================================
// Band Constants
// ================================================================================

// Band is a discrete classification bucket shared by numeric scores and severity labels.
// Bands are ordered; a larger value is a more severe band.
type Band int

const (
	BandUnknown Band = iota
	BandLow
	BandModerate
	BandElevated
	BandHigh
	BandSevere
)

var bandNames = map[Band]string{
	BandUnknown:  "Unknown",
	BandLow:      "Low",
	BandModerate: "Moderate",
	BandElevated: "Elevated",
	BandHigh:     "High",
	BandSevere:   "Severe",
}

// String returns the presentation name of the band.
func (b Band) String() string {
	if name, ok := bandNames[b]; ok {
		return name
	}
	return bandNames[BandUnknown]
}

// MarshalText encodes the band by name so JSON payloads carry "Severe" rather than 5.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a band name. Unrecognized names decode to BandUnknown.
func (b *Band) UnmarshalText(text []byte) error {
	for band, name := range bandNames {
		if name == string(text) {
			*b = band
			return nil
		}
	}
	*b = BandUnknown
	return nil
}

// ================================================================================
// Severity Constants
// ================================================================================

// Severity is the presentation severity carried by an alert entry.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"

	// SeverityCritical is accepted as classifier input only; alerts never carry it.
	SeverityCritical Severity = "Critical"
)

// ================================================================================
// Alert Rule Constants
// ================================================================================

// AlertRule identifies the rule that produced an alert.
type AlertRule string

const (
	// AlertRuleBandCrossing fires when the overall score crosses upward into High or Severe
	AlertRuleBandCrossing AlertRule = "band_crossing"

	// AlertRuleTrendDrop fires when the overall score falls by more than the configured delta
	AlertRuleTrendDrop AlertRule = "trend_drop"

	// AlertRuleDimensionBreach fires when a single dimension reaches the breach threshold
	AlertRuleDimensionBreach AlertRule = "dimension_breach"
)

// ================================================================================
// License Status Constants
// ================================================================================

// LicenseStatus is the regulatory status of an entity license.
type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusRevoked   LicenseStatus = "revoked"
	LicenseStatusExpired   LicenseStatus = "expired"
)

// Operational score penalties applied per non-active license.
const (
	LicensePenaltySuspended = 15
	LicensePenaltyRevoked   = 30
	LicensePenaltyExpired   = 10
)

// ================================================================================
// Engine Defaults
// ================================================================================

const (
	// DefaultTrendDropDelta is the overall score decrease that triggers a trend_drop alert
	DefaultTrendDropDelta = 10

	// DefaultDimensionBreachScore is the dimension score at or above which a dimension_breach fires
	DefaultDimensionBreachScore = 90

	// DefaultWorkers bounds the per-entity fan-out
	DefaultWorkers = 8

	// WeightSumTolerance is the allowed deviation of a weight set from 1.0
	WeightSumTolerance = 1e-6
)

// Default score thresholds, applied top-down with score >= threshold.
const (
	DefaultSevereThreshold   = 90
	DefaultHighThreshold     = 75
	DefaultElevatedThreshold = 60
	DefaultModerateThreshold = 40
)

// ================================================================================
// Cache & Scheduling Constants
// ================================================================================

const (
	// ProfileCacheTTL is the L1 lifetime of a looked-up entity profile
	ProfileCacheTTL = 5 * time.Minute

	// ProfileCacheCleanupInterval is how often expired L1 entries are purged
	ProfileCacheCleanupInterval = 10 * time.Minute

	// DefaultPollInterval is how often the poller recomputes risk from the data source
	DefaultPollInterval = 5 * time.Minute

	// DefaultAlertListLimit caps timeline queries without an explicit limit
	DefaultAlertListLimit = 100

	// MaxAlertListLimit caps timeline queries with an explicit limit
	MaxAlertListLimit = 1000
)

const (
	// TrackerKeyPrefix namespaces the redis hash holding alert tracker state
	TrackerKeyPrefix = "risk:alert-tracker:"

	// RateLimitKeyPrefix namespaces token bucket keys
	RateLimitKeyPrefix = "risk:ratelimit"

	// IdempotencyKeyPrefix namespaces stored Idempotency-Key responses
	IdempotencyKeyPrefix = "risk:idempotency:"
)

// ================================================================================
// Log Level Constants
// ================================================================================

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored in a context.Context
type ContextKey string

const (
	// ContextKeyRequestID carries the HTTP request id
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID carries the trace id of the active span
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyPassID carries the id of the recomputation pass
	ContextKeyPassID ContextKey = "pass_id"

	// ContextKeyLogger carries a request-scoped logger
	ContextKeyLogger ContextKey = "logger"
)

// ================================================================================
// Service Identity
// ================================================================================

const (
	// ServiceName is used for tracing and metrics namespaces
	ServiceName = "fincore-risk"

	// MetricsNamespace prefixes every prometheus metric
	MetricsNamespace = "fincore_risk"
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode is a machine-readable error code returned to callers
type ErrorCode string

const (
	// ErrCodeInvalidIndicator indicates a raw dimension indicator is missing or malformed
	ErrCodeInvalidIndicator ErrorCode = "invalid_indicator"

	// ErrCodeMissingDimension indicates a dimension score is absent at aggregation time
	ErrCodeMissingDimension ErrorCode = "missing_dimension"

	// ErrCodeInvalidEntityRecord indicates an entity record lacks a usable identifier
	ErrCodeInvalidEntityRecord ErrorCode = "invalid_entity_record"

	// ErrCodeInvalidConfig indicates engine configuration is inconsistent
	ErrCodeInvalidConfig ErrorCode = "invalid_config"

	// ErrCodeInvalidRequest indicates a malformed API request
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeNotFound indicates the requested resource does not exist
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeServerError indicates an unexpected internal failure
	ErrCodeServerError ErrorCode = "server_error"

	// ErrCodeRateLimited indicates the client exceeded its request budget
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// ErrCodeConflict indicates a replayed Idempotency-Key
	ErrCodeConflict ErrorCode = "conflict"
)
