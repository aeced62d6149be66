package devicetest

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/maestro/protocol"
)

// Request is one decoded request line received by the device.
type Request struct {
	Command protocol.Command
	Params  url.Values
}

// HandlerFunc scripts the device's reply for one command. Returning nil
// sends no reply at all, which is how tests exercise timeouts.
type HandlerFunc func(req Request) []byte

// Device is a scripted stand-in for a HEOS-speaking appliance. It accepts
// any number of connections, records every request it receives, replies per
// the registered handlers, and can push events to every connected client.
//
// Commands without a registered handler are acknowledged with an empty
// success reply, which is enough for the client's connect handshake.
type Device struct {
	log *zap.Logger

	listener   net.Listener
	loopWaiter sync.WaitGroup

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	handlers map[protocol.Command]HandlerFunc
	requests []Request
	accepted int

	stop chan struct{}
}

func New(log *zap.Logger) *Device {
	return &Device{
		log:      log,
		conns:    make(map[net.Conn]struct{}),
		handlers: make(map[protocol.Command]HandlerFunc),
		stop:     make(chan struct{}),
	}
}

// Handle scripts the reply for a command. It may be called while the device
// is running.
func (d *Device) Handle(cmd protocol.Command, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[cmd] = handler
}

// Start listens on an ephemeral local port and begins accepting connections.
func (d *Device) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	d.listener = listener

	d.loopWaiter.Add(1)
	go func() {
		defer d.loopWaiter.Done()
		d.acceptLoop()
	}()

	return nil
}

// Host returns the address the device listens on.
func (d *Device) Host() string {
	host, _, _ := net.SplitHostPort(d.listener.Addr().String())
	return host
}

// Port returns the ephemeral port the device listens on.
func (d *Device) Port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections and closes the active ones.
func (d *Device) Close() error {
	if d.isRunning() {
		close(d.stop)
	}

	err := d.listener.Close()

	d.mu.Lock()
	for conn := range d.conns {
		err = multierr.Append(err, conn.Close())
		delete(d.conns, conn)
	}
	d.mu.Unlock()

	d.loopWaiter.Wait()

	return err
}

// Requests returns a copy of every request received so far, in arrival
// order across all connections.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	requests := make([]Request, len(d.requests))
	copy(requests, d.requests)

	return requests
}

// Accepted returns how many connections the device has accepted.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.accepted
}

// SendEvent pushes an unsolicited notification to every connected client.
func (d *Device) SendEvent(name string, message map[string]string) (err error) {
	data := Event(name, message)

	d.mu.Lock()
	defer d.mu.Unlock()

	for conn := range d.conns {
		if _, werr := conn.Write(data); werr != nil {
			err = multierr.Append(err, werr)
		}
	}

	return err
}

// DropConnections severs every active connection without stopping the
// listener, simulating an unexpected network drop.
func (d *Device) DropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for conn := range d.conns {
		conn.Close()
		delete(d.conns, conn)
	}
}

func (d *Device) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if d.isRunning() && !errors.Is(err, net.ErrClosed) {
				d.log.Warn("Accept failed", zap.Error(err))
			}
			return
		}

		d.mu.Lock()
		d.conns[conn] = struct{}{}
		d.accepted++
		d.mu.Unlock()

		d.loopWaiter.Add(1)
		go func() {
			defer d.loopWaiter.Done()
			d.serveConn(conn)
		}()
	}
}

func (d *Device) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()

		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
	}()

	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		req, perr := parseRequest(strings.TrimRight(line, "\r\n"))
		if perr != nil {
			d.log.Warn("Ignoring unparseable request", zap.Error(perr))
			continue
		}

		d.mu.Lock()
		d.requests = append(d.requests, req)
		handler := d.handlers[req.Command]
		d.mu.Unlock()

		var reply []byte
		if handler != nil {
			reply = handler(req)
		} else {
			reply = Success(req.Command, "", nil)
		}

		if reply == nil {
			// Scripted silence.
			continue
		}

		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func parseRequest(line string) (Request, error) {
	prefix := protocol.Scheme + "://"
	if !strings.HasPrefix(line, prefix) {
		return Request{}, fmt.Errorf("request %q does not start with %q", line, prefix)
	}

	rest := strings.TrimPrefix(line, prefix)
	command, query := rest, ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		command, query = rest[:i], rest[i+1:]
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return Request{}, err
	}

	return Request{Command: protocol.Command(command), Params: params}, nil
}

// isRunning returns true if Close has not been called
func (d *Device) isRunning() bool {
	select {
	case <-d.stop:
		return false

	default:
		return true
	}
}
