package heos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/maestro/protocol"
)

// Conn is a client connection to a single device. It owns the socket, the
// receive buffer and the dispatch queue; all public entry points are safe
// for concurrent use.
type Conn struct {
	opts Options
	log  *zap.Logger

	queue  *dispatchQueue
	events *eventHub

	mu    sync.Mutex
	addr  string
	state State
	sock  net.Conn

	// At most one of these is non-nil at a time, while its transition is
	// in flight. Concurrent callers share the waiter's outcome.
	connectWaiter    *waiter
	disconnectWaiter *waiter
	reconnectWaiter  *waiter

	watchdogStop chan struct{}
	probing      bool
}

// New creates a client for the device at options.Host. No connection is
// attempted until Connect is called.
func New(options Options) *Conn {
	options = options.withDefaults()

	c := &Conn{
		opts:   options,
		log:    options.Log,
		addr:   net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		state:  Disconnected,
		events: newEventHub(options.Log.Named("events")),
	}

	c.queue = newDispatchQueue(options.CommandTimeout, c.writeRequest, options.Log.Named("queue"))

	return c
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// SetAddress updates the target host for the next connect. It does not
// itself trigger reconnection.
func (c *Conn) SetAddress(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.addr = net.JoinHostPort(host, strconv.Itoa(c.opts.Port))
}

// On subscribes a handler to device events, or to every event when the name
// is AnyEvent. The returned function removes the subscription.
func (c *Conn) On(event string, handler Handler) func() {
	return c.events.On(event, handler)
}

// OnStateChange subscribes a handler to connection state transitions.
func (c *Conn) OnStateChange(handler StateHandler) func() {
	return c.events.OnStateChange(handler)
}

// Submit issues a command to the device and blocks until its reply arrives,
// the command timeout expires, or ctx is cancelled. It is the sole channel
// for issuing requests; the per-domain convenience methods all delegate here.
func (c *Conn) Submit(ctx context.Context, command protocol.Command, params map[string]string) (*protocol.Envelope, error) {
	return c.queue.Submit(ctx, command, params)
}

// Connect opens the socket and performs the change-event registration
// handshake. It is idempotent: while already connected it is a no-op, and a
// caller racing an in-flight connect shares its outcome instead of opening a
// second socket. A connect racing a disconnect waits for the disconnect to
// settle first.
func (c *Conn) Connect(ctx context.Context) error {
	for {
		c.mu.Lock()

		switch c.state {
		case Connected:
			c.mu.Unlock()
			return nil

		case Connecting:
			w := c.connectWaiter
			c.mu.Unlock()
			return w.wait(ctx)

		case Disconnecting:
			w := c.disconnectWaiter
			c.mu.Unlock()

			// Tolerate a failed disconnect, the connect proceeds
			// regardless.
			_ = w.wait(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}

			runtime.Gosched()
			continue

		default: // Disconnected
			w := newWaiter()
			c.connectWaiter = w
			c.setStateLocked(Connecting)
			addr := c.addr
			c.mu.Unlock()

			go c.runConnect(w, addr)

			return w.wait(ctx)
		}
	}
}

// Disconnect closes the socket and waits for its close confirmation. It is
// idempotent, and a disconnect racing an in-flight connect waits for the
// connect to settle (tolerating its failure) before closing.
func (c *Conn) Disconnect(ctx context.Context) error {
	for {
		c.mu.Lock()

		switch c.state {
		case Disconnected:
			c.mu.Unlock()
			return nil

		case Disconnecting:
			w := c.disconnectWaiter
			c.mu.Unlock()
			return w.wait(ctx)

		case Connecting:
			w := c.connectWaiter
			c.mu.Unlock()

			_ = w.wait(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}
			continue

		default: // Connected
			w := newWaiter()
			c.disconnectWaiter = w
			c.setStateLocked(Disconnecting)
			sock := c.sock
			stop := c.watchdogStop
			c.watchdogStop = nil
			c.mu.Unlock()

			if stop != nil {
				close(stop)
			}

			// The read loop observes the close and performs the
			// teardown, which settles the waiter.
			if err := sock.Close(); err != nil {
				c.log.Warn("Socket did not close cleanly", zap.Error(err))
			}

			return w.wait(ctx)
		}
	}
}

// Reconnect tears the connection down and brings it back up. It is
// reentrant-safe: a caller racing an in-flight reconnect shares its outcome
// rather than starting a second cycle.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if w := c.reconnectWaiter; w != nil {
		c.mu.Unlock()
		return w.wait(ctx)
	}

	w := newWaiter()
	c.reconnectWaiter = w
	c.mu.Unlock()

	go c.runReconnect(w)

	return w.wait(ctx)
}

// Close disconnects and releases the client's resources. The client cannot
// be reused afterwards.
func (c *Conn) Close() error {
	err := c.Disconnect(context.Background())
	c.events.Close()

	return err
}

func (c *Conn) runConnect(w *waiter, addr string) {
	log := c.log.Named("connect")

	dialer := net.Dialer{Timeout: c.opts.CommandTimeout}

	sock, err := dialer.Dial("tcp", addr)
	if err != nil {
		log.Warn("Failed to dial device", zap.String("addr", addr), zap.Error(err))

		c.mu.Lock()
		c.clearConnectWaiterLocked(w)
		c.setStateLocked(Disconnected)
		c.mu.Unlock()

		w.settle(fmt.Errorf("dial %s: %w", addr, err))
		return
	}

	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()

	go c.readLoop(sock)

	// The device only pushes change events to registered clients, so the
	// connection is not usable until this handshake succeeds.
	_, err = c.queue.Submit(context.Background(), protocol.RegisterForChangeEvents,
		map[string]string{"enable": "on"})
	if err != nil {
		log.Warn("Handshake failed, tearing the socket down", zap.Error(err))

		// Settle first so the waiter carries the precise cause; the
		// read loop's teardown then clears the waiter and forces the
		// state back to Disconnected.
		w.settle(fmt.Errorf("handshake: %w", err))
		sock.Close()
		return
	}

	c.mu.Lock()
	if c.state != Connecting || c.connectWaiter != w {
		// The socket died while the handshake reply was in flight.
		c.mu.Unlock()
		w.settle(ErrClosed)
		return
	}

	c.clearConnectWaiterLocked(w)
	c.setStateLocked(Connected)

	stop := make(chan struct{})
	c.watchdogStop = stop
	c.mu.Unlock()

	go c.watchdogLoop(stop)

	log.Debug("Connected", zap.String("addr", addr))
	w.settle(nil)
}

func (c *Conn) runReconnect(w *waiter) {
	c.events.emitEvent(EventReconnecting, nil)

	if err := c.Disconnect(context.Background()); err != nil {
		// Always proceed to the connect attempt.
		c.log.Warn("Disconnect before reconnect failed", zap.Error(err))
	}

	err := c.Connect(context.Background())
	if err != nil {
		c.events.emitEvent(EventReconnectError, map[string]string{"error": err.Error()})
	} else {
		c.events.emitEvent(EventReconnected, nil)
	}

	c.mu.Lock()
	if c.reconnectWaiter == w {
		c.reconnectWaiter = nil
	}
	c.mu.Unlock()

	w.settle(err)
}

// readLoop owns the receive buffer for one socket's lifetime. It feeds raw
// bytes to the framer, drains every complete unit, and performs the
// connection teardown when the socket closes for any reason.
func (c *Conn) readLoop(sock net.Conn) {
	log := c.log.Named("readLoop")

	framer := &protocol.Framer{}
	buf := make([]byte, 4096)

	for {
		n, err := sock.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n])
			c.drain(framer, log)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("Socket read failed", zap.Error(err))
			}

			c.teardown(sock, err)
			return
		}
	}
}

// drain routes every complete buffered unit: events fan out to subscribers,
// replies complete the head of the dispatch queue.
func (c *Conn) drain(framer *protocol.Framer, log *zap.Logger) {
	for {
		env, err := framer.Next()

		if err != nil {
			if errors.Is(err, protocol.ErrUnknownResponse) {
				c.queue.rejectCurrent(err)
			} else {
				log.Warn("Discarding unparseable response unit", zap.Error(err))
				c.events.emitEvent(EventParseError, map[string]string{"error": err.Error()})
			}
			continue
		}

		if env == nil {
			return
		}

		if env.IsEvent() {
			log.Debug("Event", zap.String("event", env.EventName()))
			c.events.emitEvent(env.EventName(), env.Message)
			continue
		}

		c.queue.completeReply(env)
	}
}

// teardown forces the connection to Disconnected after its socket closed,
// whether the close was requested or not. It fails the in-flight commands,
// settles whichever transition was pending, and discards the socket.
func (c *Conn) teardown(sock net.Conn, cause error) {
	c.mu.Lock()

	if c.sock != sock {
		// A stale read loop racing a newer connection.
		c.mu.Unlock()
		return
	}

	c.sock = nil
	was := c.state

	connectWaiter := c.connectWaiter
	c.connectWaiter = nil
	disconnectWaiter := c.disconnectWaiter
	c.disconnectWaiter = nil

	stop := c.watchdogStop
	c.watchdogStop = nil

	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	c.queue.failAll(fmt.Errorf("%w: %v", ErrClosed, cause))

	if was == Connecting && connectWaiter != nil {
		connectWaiter.settle(fmt.Errorf("%w before connect completed", ErrClosed))
	}

	if was == Disconnecting && disconnectWaiter != nil {
		disconnectWaiter.settle(nil)
	}
}

func (c *Conn) clearConnectWaiterLocked(w *waiter) {
	if c.connectWaiter == w {
		c.connectWaiter = nil
	}
}

func (c *Conn) setStateLocked(state State) {
	if c.state == state {
		return
	}

	c.state = state
	c.events.emitState(state)
}

// writeRequest is the dispatch queue's socket access. Commands issued while
// disconnected fail fast here.
func (c *Conn) writeRequest(data []byte) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()

	if sock == nil {
		return ErrNotConnected
	}

	if _, err := sock.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}
