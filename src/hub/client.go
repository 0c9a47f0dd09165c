package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchestra-mcp/chat/src/types"
)

// Client wraps one authenticated WebSocket connection. Outbound frames go
// through a bounded buffer drained by WritePump so a stalled socket never
// blocks a broadcast.
type Client struct {
	ID          string
	User        types.PublicProfile
	conn        types.Conn
	send        chan []byte
	connectedAt time.Time

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client wrapper with a send buffer of bufferSize frames.
func NewClient(user types.PublicProfile, conn types.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Client{
		ID:          uuid.New().String(),
		User:        user,
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.User.ID,
		ConnectedAt: c.connectedAt,
	}
}

// Enqueue queues an encoded frame without blocking.
func (c *Client) Enqueue(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return types.ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return types.ErrSendBufferFull
	}
}

// ReadPump reads frames until the connection fails, handing each to handle.
// The client is closed on return.
func (c *Client) ReadPump(handle func(*Client, []byte)) error {
	defer c.Close()
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			return err
		}
		handle(c, frame)
	}
}

// WritePump writes queued frames to the connection and pings it every
// pingInterval. It returns when the client closes or a write fails.
func (c *Client) WritePump(pingInterval time.Duration) error {
	defer c.Close()

	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteFrame(frame); err != nil {
				return err
			}
		case <-tick:
			if err := c.conn.Ping(); err != nil {
				return err
			}
		case <-c.done:
			return nil
		}
	}
}

// Close shuts the connection. Safe to call from any path, any number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
