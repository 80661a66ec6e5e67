// Package server provides the bridge's local HTTP status surface.
//
//   - REST API: JSON snapshot of health and readings at "/api/status"
//   - Server-Sent Events: live reading updates at "/api/sse"
//   - Liveness: "/healthz" reflects ClubLog connectivity
//   - Metrics: Prometheus exposition at "/metrics"
//
// Routing uses chi. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
package server
