// Package ports defines the interfaces between the relay and its adapters.
//
// Adapters live under pkg/adapters:
//   - storage: where the current reading is persisted (file, redis, memory)
//   - events: how reading events reach stream clients (memory, redis)
//   - metrics: Prometheus collector
package ports
