// Package watcher announces out-of-band changes to the reading store.
//
// A device tool may write the backing file directly instead of POSTing.
// The watcher notices such edits and publishes a reading.changed event so
// stream clients stay current. Stores that push change notifications (file
// via fsnotify, NATS KV via key watches) are followed directly; others are
// polled on an interval.
package watcher
