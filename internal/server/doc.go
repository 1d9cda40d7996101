// Package server implements the HTTP surface of kubegrant.
//
// The package is thin plumbing around the provisioning core: it parses and
// validates transport framing, hands the core a (name, namespace,
// permissions) triple, and renders either the produced artifact or the
// normalized failure as JSON.
//
// Components:
//
//   - ServerContext: dependency container configured through functional
//     options, owning the provisioning service, logger and configuration
//   - Router: chi routes for the four API operations plus health and
//     metrics endpoints
//   - HealthChecker: liveness/readiness handlers for Kubernetes probes
//   - Metrics: prometheus counters for provisioning outcomes
//
// Error responses carry the normalized error kind plus the raw upstream
// status and reason, so callers can decide whether to retry.
package server
