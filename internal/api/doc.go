// Package api implements the local HTTP REST API and WebSocket server of the
// Glue Home bridge.
//
// This package provides:
//   - Read endpoints for the current lock directory and its entities
//   - Lock and unlock actuation that waits for the cloud operation to settle
//   - Per-lock operation history
//   - An on-demand directory refresh
//   - Prometheus metrics at /metrics
//   - A WebSocket hub broadcasting lock state changes
//
// # Error Mapping
//
// Upstream failures are reported with stable error codes: a rejected
// credential is 502 upstream_auth, an operation the cloud reported as
// failed is 409 operation_failed, any other cloud error is 502
// upstream_error and an unknown lock is 404 not_found.
//
// # Security
//
// When api.jwt_secret is set, every route except /health and /metrics
// requires an HS256 bearer token (see IssueToken). WebSocket clients
// exchange their token for a single-use ticket at POST /api/v1/ws/ticket and
// pass it as ?ticket= on the upgrade. Without a secret, configuration
// validation keeps the listener on a loopback address.
package api
