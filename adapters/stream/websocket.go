package stream

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
)

const (
	// Time allowed to write a chunk to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	defaultEndpoint         = "ws://localhost:8000/ws/transcribe"
	defaultHandshakeTimeout = 10 * time.Second
)

// Config holds streaming connection settings
type Config struct {
	Endpoint         string
	HandshakeTimeout time.Duration
}

// ConfigFromEnv reads the streaming endpoint from the environment, applying
// defaults where unset.
func ConfigFromEnv() Config {
	cfg := Config{
		Endpoint:         os.Getenv("SAGE_STREAM_ENDPOINT"),
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return cfg
}

// Client implements repositories.StreamTransport over a gorilla websocket.
// One connection at a time; the session service serializes Open/Close pairs.
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	// epoch identifies the current Open; a dial completing under an older
	// epoch must not install its connection.
	epoch uint64
}

var _ repositories.StreamTransport = (*Client)(nil)

// NewClient creates a websocket stream transport
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{cfg: cfg, logger: logger}
}

// Open dials the endpoint in the background. The handshake outcome and
// everything after it arrive through the callbacks; Open itself never
// blocks the caller.
func (c *Client) Open(ctx context.Context, token string, cb repositories.StreamCallbacks) {
	c.mu.Lock()
	c.closed = false
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	go c.dial(ctx, epoch, token, cb)
}

func (c *Client) dial(ctx context.Context, epoch uint64, token string, cb repositories.StreamCallbacks) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		c.logger.Error("WebSocket dial failed",
			zap.String("endpoint", c.cfg.Endpoint),
			zap.Error(err))
		cb.OnFailed(err)
		return
	}

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		// Close or a newer Open won the race with this dial; drop the
		// connection quietly instead of clobbering the current one.
		c.mu.Unlock()
		conn.Close()
		cb.OnClosed()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("Stream connected", zap.String("endpoint", c.cfg.Endpoint))
	cb.OnOpen()

	c.readPump(conn, cb)
}

// readPump delivers parsed server events in arrival order until the
// connection goes away.
func (c *Client) readPump(conn *websocket.Conn, cb repositories.StreamCallbacks) {
	conn.SetReadLimit(maxMessageSize)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closedLocally := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if closedLocally || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Stream closed")
				cb.OnClosed()
			} else {
				c.logger.Error("Stream failed", zap.Error(err))
				cb.OnFailed(err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Ignoring non-text frame from server", zap.Int("type", messageType))
			continue
		}

		ev, err := entities.ParseServerEvent(data)
		if err != nil {
			// Malformed payloads surface as an in-band error event rather
			// than tearing the connection down.
			cb.OnEvent(entities.ServerEvent{
				Type:    entities.EventStreamError,
				Message: err.Error(),
			})
			continue
		}
		cb.OnEvent(ev)
	}
}

// Send writes one binary audio frame. Valid only while the connection is
// open; the session service guards that window.
func (c *Client) Send(chunk entities.AudioChunk) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return websocket.ErrCloseSent
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.BinaryMessage, chunk.Data)
}

// Close tears the connection down without flushing pending sends. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}
