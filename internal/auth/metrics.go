// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for operation metrics. Failures carry the error kind
// (see KindOf) or OutcomeError when the error has no kind.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Revocation reasons.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonAdmin          = "admin"
	RevokeReasonDisabled       = "disabled"
	RevokeReasonRoleChange     = "role_change"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonDeleted        = "deleted"
)

// OperationTotal counts session service operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_operations_total",
		Help: "Total number of session service operations",
	},
	[]string{"operation", "outcome"},
)

// OperationDuration is the histogram for session service operation duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authcore_operation_duration_seconds",
		Help:    "Session service operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// RefreshTokensRevoked counts refresh tokens revoked outside of rotation.
var RefreshTokensRevoked = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_refresh_tokens_revoked_total",
		Help: "Total number of refresh tokens revoked by logout or administrative action",
	},
	[]string{"reason"},
)

var tokenCollisions = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "authcore_refresh_token_collisions_total",
	Help: "Total number of refresh token hash collisions that forced regeneration",
})

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// This must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationTotal)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(RefreshTokensRevoked)
	reg.MustRegister(tokenCollisions)
}

func recordOperation(operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	outcome := OutcomeSuccess
	if err != nil {
		outcome = KindOf(err)
		if outcome == "" {
			outcome = OutcomeError
		}
	}
	OperationTotal.WithLabelValues(operation, outcome).Inc()
}

func recordRevoked(reason string, n int64) {
	if n > 0 {
		RefreshTokensRevoked.WithLabelValues(reason).Add(float64(n))
	}
}
