package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when no reading has been persisted yet
var ErrNotFound = errors.New("reading not found")

// Store persists the textual form of the current reading.
// Implementations use whole-value semantics: Read returns everything that was
// last written, Write replaces it entirely.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, value string) error
}

// StoreWatcher is implemented by stores that can push change notifications.
// The returned channel carries the raw value of every change, or an empty
// string when the value was removed, and is closed once ctx is done.
type StoreWatcher interface {
	Watch(ctx context.Context) (<-chan string, error)
}

// EventType identifies the kind of reading event
type EventType string

const (
	// EventReadingUpdated is published when a POST changes the shared value
	EventReadingUpdated EventType = "reading.updated"
	// EventReadingChanged is published when the store changes out of band
	EventReadingChanged EventType = "reading.changed"
	// EventReadingSnapshot is sent to stream clients on connect
	EventReadingSnapshot EventType = "reading.snapshot"
)

// Event sources
const (
	SourceHTTP  = "http"
	SourceStore = "store"
)

// TopicReadings is the topic all reading events are published on
const TopicReadings = "readings"

// Event is a reading notification carried by the event bus
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	BPM       int       `json:"bpm"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler processes a single event
type EventHandler func(ctx context.Context, event Event) error

// EventBus delivers reading events to subscribers.
// Subscriptions end when the context passed to Subscribe is cancelled.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records relay activity
type MetricsCollector interface {
	RecordReading(result string)
	SetCurrentBPM(bpm int)
	RecordStoreError(op string)
	RecordEventPublished(eventType EventType)
	RecordRequest(method string, status int, duration time.Duration)
	AddStreamClients(delta int)
}

// Reading results recorded by RecordReading
const (
	ReadingAccepted = "accepted"
	ReadingIgnored  = "ignored"
)

// NopMetricsCollector discards everything. Used when metrics are disabled.
type NopMetricsCollector struct{}

func (NopMetricsCollector) RecordReading(string) {}
func (NopMetricsCollector) SetCurrentBPM(int) {}
func (NopMetricsCollector) RecordStoreError(string) {}
func (NopMetricsCollector) RecordEventPublished(EventType) {}
func (NopMetricsCollector) RecordRequest(string, int, time.Duration) {}
func (NopMetricsCollector) AddStreamClients(int) {}
