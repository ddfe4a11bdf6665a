// Package events provides event bus implementations.
//
// Implementations:
//   - memory: in-process fan-out (default)
//   - redis: Redis Streams, one independent reader per subscriber
//   - nats: core NATS subjects, at-most-once delivery
package events
