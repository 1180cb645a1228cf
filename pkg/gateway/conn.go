package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle of a Conn.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// readBufferSize bounds a single response chunk.
const readBufferSize = 4096

// Conn is an exclusive request/response channel to one TCP peer.
// One mutex covers the write and the read of an exchange, so at most one
// request is ever in flight.
type Conn struct {
	addr        string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	log         logrus.FieldLogger

	mu    sync.Mutex
	conn  net.Conn
	buf   []byte
	state atomic.Int32
}

// NewConn returns a disconnected Conn for addr.
func NewConn(addr string, dialTimeout, ioTimeout time.Duration, log logrus.FieldLogger) *Conn {
	if log == nil {
		log = discardLogger()
	}
	return &Conn{
		addr:        addr,
		dialTimeout: dialTimeout,
		ioTimeout:   ioTimeout,
		log:         log,
		buf:         make([]byte, readBufferSize),
	}
}

// Addr returns the peer address.
func (c *Conn) Addr() string { return c.addr }

// State returns the current connection state without blocking on an exchange.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Connect dials the peer. It is a no-op when already connected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	c.state.Store(int32(Connecting))
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state.Store(int32(Disconnected))
		return &ConnectError{Addr: c.addr, Err: err}
	}

	c.conn = conn
	c.state.Store(int32(Connected))
	c.log.WithField("addr", c.addr).Info("connected")
	return nil
}

// Send writes cmd and, if expectResponse is set, reads one response chunk.
// Any I/O failure closes the socket; later calls get ErrNotConnected.
func (c *Conn) Send(ctx context.Context, cmd Command, expectResponse bool) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange(ctx, cmd, expectResponse)
}

func (c *Conn) exchange(ctx context.Context, cmd Command, expectResponse bool) (Response, error) {
	if c.conn == nil {
		return Response{}, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Response{}, c.invalidate(cmd, err)
	}

	if _, err := c.conn.Write(cmd.Encode()); err != nil {
		return Response{}, c.invalidate(cmd, err)
	}
	if !expectResponse {
		return Response{}, nil
	}

	n, err := c.conn.Read(c.buf)
	if n == 0 {
		if err == nil {
			err = errors.New("empty read")
		}
		return Response{}, c.invalidate(cmd, err)
	}

	resp := ParseResponse(c.buf[:n])
	c.log.WithFields(logrus.Fields{"cmd": cmd.String(), "resp": resp.Raw}).Trace("exchange")
	return resp, nil
}

// invalidate drops the socket after an I/O failure. Callers hold mu.
func (c *Conn) invalidate(cmd Command, cause error) error {
	_ = c.conn.Close()
	c.conn = nil
	c.state.Store(int32(Disconnected))
	c.log.WithFields(logrus.Fields{"cmd": cmd.Name, "error": cause}).Warn("connection lost")
	return fmt.Errorf("%w: %s: %v", ErrConnectionLost, cmd.Name, cause)
}

// Close sends a best-effort quit and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.exchange(ctx, NewCommand(CmdQuit), false); err != nil {
		// exchange already closed the socket
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.state.Store(int32(Disconnected))
	c.log.WithField("addr", c.addr).Info("disconnected")
	return err
}
