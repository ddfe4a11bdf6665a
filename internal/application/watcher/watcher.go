package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"go.uber.org/zap"
)

// Watch modes
const (
	ModeDisabled = "disabled"
	ModePush     = "push"
	ModePoll     = "poll"
)

// Relay is the part of the relay service the watcher needs
type Relay interface {
	Sync(ctx context.Context) (int, bool, error)
	Publish(ctx context.Context, eventType ports.EventType, source string, bpm int)
}

// Watcher announces store changes nobody POSTed.
// With a change source it reacts to store notifications. Otherwise, or when
// the source fails, it polls every interval. Without either it stays off.
type Watcher struct {
	relay    Relay
	source   ports.StoreWatcher
	interval time.Duration
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	mode    string
	cancel  context.CancelFunc
	doneCh  chan struct{}

	last    int
	seen    bool
	lastErr string
}

// Status is a snapshot of what the watcher last observed
type Status struct {
	Running   bool
	Mode      string
	LastBPM   int
	Observed  bool
	LastError string
	Timestamp time.Time
}

// New creates a watcher. source may be nil; a zero interval disables polling.
func New(relay Relay, source ports.StoreWatcher, interval time.Duration, metrics ports.MetricsCollector, logger *zap.Logger) *Watcher {
	if metrics == nil {
		metrics = ports.NopMetricsCollector{}
	}
	return &Watcher{
		relay:    relay,
		source:   source,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		mode:     ModeDisabled,
	}
}

// Start subscribes to store changes (or starts polling) and checks once
func (w *Watcher) Start() {
	if w.source == nil && w.interval <= 0 {
		w.logger.Debug("store watcher disabled")
		return
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	var changes <-chan string
	if w.source != nil {
		var err error
		changes, err = w.source.Watch(ctx)
		if err != nil {
			w.logger.Warn("store change notifications unavailable", zap.Error(err))
			changes = nil
		}
	}

	mode := ModePush
	if changes == nil {
		if w.interval <= 0 {
			w.logger.Warn("store watcher disabled: no change notifications and no poll interval")
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			cancel()
			close(w.doneCh)
			return
		}
		mode = ModePoll
	}
	w.setMode(mode)

	w.logger.Info("starting store watcher",
		zap.String("mode", mode),
		zap.Duration("interval", w.interval))

	w.check(ctx)
	go w.run(ctx, changes)
}

// Stop stops watching and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, doneCh := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()
	<-doneCh
	w.setMode(ModeDisabled)
}

// GetStatus returns the last observation
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Status{
		Running:   w.running,
		Mode:      w.mode,
		LastBPM:   w.last,
		Observed:  w.seen,
		LastError: w.lastErr,
		Timestamp: time.Now(),
	}
}

func (w *Watcher) setMode(mode string) {
	w.mu.Lock()
	w.mode = mode
	w.mu.Unlock()
}

// run is the main loop. A nil changes channel means polling.
func (w *Watcher) run(ctx context.Context, changes <-chan string) {
	defer close(w.doneCh)

	var tick <-chan time.Time
	if changes == nil {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				if w.interval <= 0 {
					w.logger.Warn("store change notifications ended, watcher stopped")
					return
				}
				w.logger.Warn("store change notifications ended, falling back to polling",
					zap.Duration("interval", w.interval))
				changes = nil
				ticker := time.NewTicker(w.interval)
				defer ticker.Stop()
				tick = ticker.C
				w.setMode(ModePoll)
				continue
			}
			w.check(ctx)

		case <-tick:
			w.check(ctx)
		}
	}
}

// check re-reads the store and publishes when it no longer matches what
// stream clients were last told
func (w *Watcher) check(ctx context.Context) bool {
	bpm, changed, err := w.relay.Sync(ctx)
	w.observe(bpm, err)
	w.metrics.SetCurrentBPM(bpm)

	if !changed {
		return false
	}

	w.logger.Info("heart rate changed in store", zap.Int("bpm", bpm))
	w.relay.Publish(ctx, ports.EventReadingChanged, ports.SourceStore, bpm)
	return true
}

// observe records the reading. A read error is logged and counted only when
// it differs from the previous one.
func (w *Watcher) observe(bpm int, err error) {
	w.mu.Lock()
	w.last = bpm
	w.seen = true
	prev := w.lastErr
	if err != nil {
		w.lastErr = err.Error()
	} else {
		w.lastErr = ""
	}
	current := w.lastErr
	w.mu.Unlock()

	switch {
	case err == nil:
		if prev != "" {
			w.logger.Info("store readable again", zap.Int("bpm", bpm))
		}
	case current != prev:
		w.metrics.RecordStoreError("read")
		w.logger.Warn("failed to read heart rate from store", zap.Error(err))
	default:
		w.logger.Debug("store still unreadable", zap.Error(err))
	}
}
