package relay

import (
	"context"
	"sync"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the shared heart rate and keeps it in sync with the store.
//
// mu serializes every access to the shared value and every store read or
// write, so at most one request touches the store at a time.
type Service struct {
	store   ports.Store
	bus     ports.EventBus
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu  sync.Mutex
	bpm int
	// streamed is the reading stream clients were last told about
	streamed int
}

// NewService creates a relay service. bus may be nil.
func NewService(
	store ports.Store,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Service {
	if metrics == nil {
		metrics = ports.NopMetricsCollector{}
	}
	return &Service{
		store:   store,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}
}

// Load initializes the shared value from the store. Any read or parse
// failure yields 0.
func (s *Service) Load(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bpm = s.readLocked(ctx)
	s.streamed = s.bpm
	s.metrics.SetCurrentBPM(s.bpm)

	s.logger.Info("initial heart rate loaded", zap.Int("bpm", s.bpm))
	return s.bpm
}

// Current re-reads the store and returns the reading it holds.
// Failures are logged and reported as 0, never as the cached value.
func (s *Service) Current(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(ctx)
}

// Value returns the shared in-memory value without touching the store
func (s *Service) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bpm
}

// Post applies a submitted reading and persists the shared value.
//
// header is the raw bpm header value and present reports whether the header
// was sent at all. A missing or unparsable header leaves the shared value
// unchanged. respond, when non-nil, runs after the update and before the
// store write, still under the lock. Write failures are logged only.
// Post returns the value that was persisted.
func (s *Service) Post(ctx context.Context, header string, present bool, respond func()) int {
	bpm, updated := func() (int, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()

		updated := s.submitLocked(header, present)
		if updated {
			s.streamed = s.bpm
		}
		if respond != nil {
			respond()
		}
		// The client may hang up once it has its response; the write must
		// still happen.
		s.persistLocked(context.WithoutCancel(ctx))

		return s.bpm, updated
	}()

	if updated {
		s.publish(ctx, ports.EventReadingUpdated, ports.SourceHTTP, bpm)
	}

	return bpm
}

// Publish sends a reading event on the bus, if one is configured, and
// records bpm as the value stream clients last saw
func (s *Service) Publish(ctx context.Context, eventType ports.EventType, source string, bpm int) {
	s.mu.Lock()
	s.streamed = bpm
	s.mu.Unlock()

	s.publish(ctx, eventType, source, bpm)
}

// Sync re-reads the store and reports whether its reading differs from the
// one last announced to stream clients. When it does, the announced value
// moves to the new reading; the caller is expected to publish it.
// Read failures count as 0, like GET, and are returned for the caller to
// report.
func (s *Service) Sync(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bpm, err := s.load(ctx)
	if bpm == s.streamed {
		return bpm, false, err
	}
	s.streamed = bpm
	return bpm, true, err
}

func (s *Service) submitLocked(header string, present bool) bool {
	if !present {
		s.metrics.RecordReading(ports.ReadingIgnored)
		return false
	}

	bpm, err := ParseBPM(header)
	if err != nil {
		s.logger.Debug("ignoring unparsable bpm header", zap.Error(err))
		s.metrics.RecordReading(ports.ReadingIgnored)
		return false
	}

	s.bpm = bpm
	s.metrics.RecordReading(ports.ReadingAccepted)
	s.metrics.SetCurrentBPM(bpm)

	s.logger.Info("received new heart rate", zap.Int("bpm", bpm))
	return true
}

func (s *Service) persistLocked(ctx context.Context) {
	if err := s.store.Write(ctx, FormatBPM(s.bpm)); err != nil {
		s.metrics.RecordStoreError("write")
		s.logger.Error("failed to update heart rate in store",
			zap.Int("bpm", s.bpm),
			zap.Error(err))
	}
}

func (s *Service) readLocked(ctx context.Context) int {
	bpm, err := s.load(ctx)
	if err != nil {
		s.metrics.RecordStoreError("read")
		s.logger.Error("failed to read heart rate from store", zap.Error(err))
	}
	return bpm
}

// load reads and parses the store. Any failure yields 0.
func (s *Service) load(ctx context.Context) (int, error) {
	raw, err := s.store.Read(ctx)
	if err != nil {
		return 0, err
	}

	bpm, err := ParseBPM(raw)
	if err != nil {
		return 0, err
	}

	return bpm, nil
}

func (s *Service) publish(ctx context.Context, eventType ports.EventType, source string, bpm int) {
	if s.bus == nil {
		return
	}

	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		BPM:       bpm,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}

	// Subscribers outlive the request that triggered the event.
	if err := s.bus.Publish(context.WithoutCancel(ctx), ports.TopicReadings, event); err != nil {
		s.logger.Error("failed to publish reading event",
			zap.String("event_id", event.ID),
			zap.String("type", string(eventType)),
			zap.Error(err))
		return
	}

	s.metrics.RecordEventPublished(eventType)
}
