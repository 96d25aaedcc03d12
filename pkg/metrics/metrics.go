// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

// Package metrics provides Prometheus instrumentation for ceremony and HTTP
// activity. Counters, histograms, and gauges are registered at init and can
// be disabled globally for tests.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkeyd metrics
	Namespace = "passkeyd"

	// Label names
	LabelCeremony   = "ceremony"
	LabelPhase      = "phase"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Phase names
	PhaseOptions = "options"
	PhaseVerify  = "verify"
)

var (
	// CeremoniesTotal tracks completed ceremony phases by type, phase, and status.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony phases by ceremony type, phase, and status",
		},
		[]string{LabelCeremony, LabelPhase, LabelStatus},
	)

	// CeremonyDuration tracks the server-side duration of ceremony phases.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony phases in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelCeremony, LabelPhase},
	)

	// VerificationErrorsTotal tracks rejected verifications by ceremony and error type.
	VerificationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verification_errors_total",
			Help:      "Total number of rejected verifications by ceremony and error type",
		},
		[]string{LabelCeremony, LabelErrorType},
	)

	// CloneDetectedTotal counts assertions rejected for a stale signature counter.
	CloneDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clone_detected_total",
			Help:      "Total number of assertions rejected because the signature counter did not advance",
		},
	)

	// PendingChallenges tracks the number of issued, unredeemed challenges.
	PendingChallenges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_challenges",
			Help:      "Number of issued challenges not yet redeemed or expired",
		},
	)

	// ChallengesSweptTotal counts challenges removed by the expiry sweeper.
	ChallengesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_swept_total",
			Help:      "Total number of expired challenges removed by the sweeper",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request durations in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a ceremony phase with its duration and status.
//
// Parameters:
//   - ceremony: The ceremony type (use Ceremony* constants)
//   - phase: The ceremony phase (use Phase* constants)
//   - status: The outcome (use Status* constants)
//   - duration: The phase duration in seconds
func RecordCeremony(ceremony, phase, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, phase, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony, phase).Observe(duration)
}

// RecordVerificationError records a rejected verification.
//
// Parameters:
//   - ceremony: The ceremony type (use Ceremony* constants)
//   - errorType: A stable error code (e.g., "no_active_ceremony", "clone_detected")
func RecordVerificationError(ceremony, errorType string) {
	if !enabled.Load() {
		return
	}
	VerificationErrorsTotal.WithLabelValues(ceremony, errorType).Inc()
}

// RecordCloneDetected records an assertion rejected for a stale counter.
func RecordCloneDetected() {
	if !enabled.Load() {
		return
	}
	CloneDetectedTotal.Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetPendingChallenges sets the pending challenge gauge.
func SetPendingChallenges(count float64) {
	if !enabled.Load() {
		return
	}
	PendingChallenges.Set(count)
}

// AddChallengesSwept records challenges removed by the sweeper.
func AddChallengesSwept(count int) {
	if !enabled.Load() || count <= 0 {
		return
	}
	ChallengesSweptTotal.Add(float64(count))
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
