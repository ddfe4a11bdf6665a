// Package http provides the HTTP relay endpoint.
//
// The server exposes:
//   - GET on any path: the current reading as {"bpm": N}
//   - POST on any path: submit a reading through the bpm header
//   - /healthz: health check
//   - /metrics: Prometheus metrics
//   - /ws: WebSocket reading stream
package http
