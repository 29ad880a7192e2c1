package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event names written to server-sent event streams.
const (
	EventObservation = "observation"
	EventResult      = "result"
)

// SSEClient streams poll observations as server-sent events. Every frame
// carries a monotonically increasing id.
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	closed  bool
	seq     uint64
	last    time.Time
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEClient{writer: writer, flusher: flusher, log: logger, last: time.Now().UTC()}
}

// Open tells the browser how long to wait before reconnecting.
func (c *SSEClient) Open(retry time.Duration) error {
	return c.write(fmt.Sprintf("retry: %d\n\n", retry.Milliseconds()))
}

// Send emits an observation event.
func (c *SSEClient) Send(payload []byte) error {
	return c.SendEvent(EventObservation, payload)
}

// SendEvent emits a named data event.
func (c *SSEClient) SendEvent(event string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.writeLocked(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", c.seq, event, payload))
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	return c.write(": ping\n\n")
}

func (c *SSEClient) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(frame)
}

func (c *SSEClient) writeLocked(frame string) error {
	if c.closed {
		return io.EOF
	}
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.closed = true
		c.log.Warn("sse write failed", "error", err)
		return err
	}
	c.flusher.Flush()
	c.last = time.Now().UTC()
	return nil
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// LastActivity reports the timestamp of the most recent successful write.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
