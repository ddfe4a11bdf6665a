// Package storage provides reading store implementations.
//
// Implementations:
//   - file: plain-text backing file, whole-file read/write (default)
//   - redis: single Redis string key
//   - nats: single key in a JetStream key-value bucket
//   - memory: In-memory for testing
package storage
