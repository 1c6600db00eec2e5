package streamclient

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/regassist/backend/pkg/protocol"
)

// Status represents the lifecycle state of the connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusRecovering   Status = "recovering"
)

// DefaultOutboxSize bounds how many frames queue while disconnected.
const DefaultOutboxSize = 64

// Options configures a Conn.
type Options struct {
	// URL of the WebSocket endpoint, e.g. ws://host/api/ws.
	URL string

	// Dialer used to establish the transport. Defaults to
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Backoff policy for reconnect waits.
	Backoff Backoff

	// MaxAttempts caps consecutive failed reconnects before the
	// connection gives up and reports disconnected. Zero retries forever.
	MaxAttempts int

	// OutboxSize bounds the queue of frames sent while not connected.
	// Frames beyond the bound are dropped with a logged warning.
	OutboxSize int

	// OnStatusChange is invoked on every status transition.
	OnStatusChange func(Status)
}

// Conn owns the single persistent connection to the backend. It decodes
// inbound frames onto its Router, queues outbound frames while the
// transport is down, and reconnects with exponential backoff. Transport
// failures never surface as errors to callers of Send or Subscribe; they
// degrade to an observable Status.
type Conn struct {
	opts   Options
	router *Router

	mu           sync.Mutex
	status       Status
	ws           *websocket.Conn
	outbox       []*protocol.Frame
	attempt      int
	lastErr      error
	running      bool
	closed       bool
	closeCh      chan struct{}
	connectHooks []func()

	writeMu sync.Mutex
}

// NewConn creates a Conn. Call Connect to establish the transport.
func NewConn(opts Options) *Conn {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	return &Conn{
		opts:    opts,
		router:  NewRouter(),
		status:  StatusDisconnected,
		closeCh: make(chan struct{}),
	}
}

// Router returns the router that inbound frames are dispatched on.
func (c *Conn) Router() *Router {
	return c.router
}

// Status returns the current connection status.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the most recent transport error, if any.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers a handler for a frame type and returns the
// function that removes it.
func (c *Conn) Subscribe(frameType protocol.FrameType, fn Handler) func() {
	return c.router.Subscribe(frameType, fn)
}

// OnConnect registers a hook invoked after every successful connect,
// before the outbox is flushed. Subscription layers use this to
// re-announce their project set after a reconnect.
func (c *Conn) OnConnect(hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectHooks = append(c.connectHooks, hook)
}

// Connect establishes the transport. It is idempotent while the
// connection is already connecting or connected, and a no-op after Close.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.closed || c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.attempt = 0
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	go c.run()
}

// Send queues a frame for transmission. It never fails to the caller:
// while the transport is down the frame goes to the bounded outbox, and
// outbox overflow drops the frame with a logged warning.
func (c *Conn) Send(frame *protocol.Frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ws := c.ws
	if ws == nil {
		if len(c.outbox) >= c.opts.OutboxSize {
			c.mu.Unlock()
			log.Printf("Outbox full, dropping %s frame", frame.Type)
			return
		}
		c.outbox = append(c.outbox, frame)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.write(ws, frame)
}

// SendType builds a frame from the payload and sends it.
func (c *Conn) SendType(frameType protocol.FrameType, projectID string, payload interface{}) {
	frame, err := protocol.New(frameType, projectID, payload)
	if err != nil {
		log.Printf("Failed to build %s frame: %v", frameType, err)
		return
	}
	c.Send(frame)
}

// Close tears down the connection. Pending backoff timers are canceled
// and no further reconnect is attempted.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	ws := c.ws
	c.ws = nil
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

// run is the connection's event loop: dial, pump frames into the
// router, and on failure back off and redial. Frames dispatch in receipt
// order on this goroutine; each handler runs to completion before the
// next frame is read.
func (c *Conn) run() {
	for {
		ws, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
		if err != nil {
			if !c.backoff(err) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.ws = ws
		c.attempt = 0
		c.lastErr = nil
		hooks := make([]func(), len(c.connectHooks))
		copy(hooks, c.connectHooks)
		outbox := c.outbox
		c.outbox = nil
		c.setStatusLocked(StatusConnected)
		c.mu.Unlock()

		for _, hook := range hooks {
			hook()
		}
		for _, frame := range outbox {
			c.write(ws, frame)
		}

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				break
			}
			c.router.Dispatch(raw)
		}
		ws.Close()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.ws = nil
		c.mu.Unlock()

		if !c.backoff(nil) {
			return
		}
	}
}

// backoff records a failed attempt and waits the policy's delay. It
// returns false when the connection is closed or the attempt ceiling is
// reached, in which case the loop must stop.
func (c *Conn) backoff(err error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if err != nil {
		c.lastErr = err
	}
	delay := c.opts.Backoff.Delay(c.attempt)
	c.attempt++
	if c.opts.MaxAttempts > 0 && c.attempt > c.opts.MaxAttempts {
		c.running = false
		c.setStatusLocked(StatusDisconnected)
		c.mu.Unlock()
		return false
	}
	c.setStatusLocked(StatusRecovering)
	c.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-c.closeCh:
		return false
	case <-timer.C:
		return true
	}
}

// write serializes one frame onto the transport. Write failures are
// logged; the read loop observes the broken transport and recovers.
func (c *Conn) write(ws *websocket.Conn, frame *protocol.Frame) {
	data, err := frame.Encode()
	if err != nil {
		log.Printf("Failed to encode %s frame: %v", frame.Type, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("Failed to write %s frame: %v", frame.Type, err)
	}
}

// setStatusLocked updates the status and schedules the change callback.
// Callers must hold c.mu; the callback runs on its own goroutine so a
// slow observer cannot block the connection loop.
func (c *Conn) setStatusLocked(status Status) {
	if c.status == status {
		return
	}
	c.status = status
	if c.opts.OnStatusChange != nil {
		go c.opts.OnStatusChange(status)
	}
}
