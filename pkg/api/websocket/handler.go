package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	bufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // overlays are served from arbitrary origins
	},
}

// Reader returns the reading a new client starts from
type Reader interface {
	Current(ctx context.Context) int
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	reader   Reader
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, reader Reader, metrics ports.MetricsCollector, logger *zap.Logger) *Handler {
	if metrics == nil {
		metrics = ports.NopMetricsCollector{}
	}
	return &Handler{
		eventBus: eventBus,
		reader:   reader,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleStream sends the current reading, then every reading event, until
// the client goes away
func (h *Handler) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.metrics.AddStreamClients(1)
	defer h.metrics.AddStreamClients(-1)

	h.logger.Info("WebSocket connection established",
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	eventChan := make(chan ports.Event, bufferSize)
	if err := h.eventBus.Subscribe(ctx, ports.TopicReadings, h.forwardTo(eventChan)); err != nil {
		h.logger.Error("failed to subscribe to readings", zap.Error(err))
		return
	}

	// Reads only detect the close; clients have nothing to say.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventReadingSnapshot,
		BPM:       h.reader.Current(ctx),
		Source:    ports.SourceStore,
		Timestamp: time.Now().UTC(),
	}
	if err := h.send(conn, snapshot); err != nil {
		h.logger.Debug("failed to send snapshot", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket connection closed",
				zap.String("client", c.ClientIP()))
			return
		case event := <-eventChan:
			if err := h.send(conn, event); err != nil {
				h.logger.Debug("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, event ports.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

// forwardTo returns an event handler that feeds ch without blocking the bus
func (h *Handler) forwardTo(ch chan<- ports.Event) ports.EventHandler {
	return func(ctx context.Context, event ports.Event) error {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}
