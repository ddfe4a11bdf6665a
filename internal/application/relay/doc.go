// Package relay implements the heart-rate relay service.
//
// The service holds the latest reading and mirrors it to a store:
//   - Load reads the store once at startup
//   - Current re-reads the store for every GET
//   - Post applies a bpm header value and writes the shared value back
//
// Store and parse failures are logged and collapse to 0; they never reach
// the caller.
package relay
