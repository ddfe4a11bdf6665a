package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// BPMHeader carries a submitted reading on POST
	BPMHeader = "bpm"

	contentTypeJSON = "application/json"
	contentTypeText = "text/plain"

	postAck          = "POST request received"
	methodNotAllowed = "method not allowed"
)

// readingBody renders the GET response. The exact shape, including the
// space after the colon, is what existing overlay clients parse.
func readingBody(bpm int) []byte {
	return []byte(`{"bpm": ` + strconv.Itoa(bpm) + `}`)
}

// handleReading dispatches relay requests on method
func (s *Server) handleReading(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet:
		s.handleGetReading(c)
	case http.MethodPost:
		s.handlePostReading(c)
	default:
		c.Data(http.StatusMethodNotAllowed, contentTypeText, []byte(methodNotAllowed))
	}
}

// handleGetReading re-reads the store and returns {"bpm": N}
func (s *Server) handleGetReading(c *gin.Context) {
	bpm := s.relay.Current(c.Request.Context())
	c.Data(http.StatusOK, contentTypeJSON, readingBody(bpm))
}

// handlePostReading applies the bpm header, acknowledges, then persists
func (s *Server) handlePostReading(c *gin.Context) {
	// The body is drained but never used.
	if _, err := io.Copy(io.Discard, c.Request.Body); err != nil {
		s.logger.Warn("failed to read request body", zap.Error(err))
	}

	values := c.Request.Header.Values(BPMHeader)
	present := len(values) > 0
	header := ""
	if present {
		header = values[0]
	}

	s.relay.Post(c.Request.Context(), header, present, func() {
		c.Data(http.StatusOK, contentTypeText, []byte(postAck))
		c.Writer.Flush()
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"bpm":    s.relay.Value(),
	})
}
