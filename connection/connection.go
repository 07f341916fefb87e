// Package connection wraps one transport Socket: it owns decoding of
// inbound frames, sending of outbound frames, and the connection's state
// machine, and emits the lifecycle signals described in spec.md §4.5/§6.
package connection

import (
	"errors"
	"sync/atomic"

	"github.com/tec27/nydus/frame"
	"go.uber.org/zap"
)

// Connection is one accepted transport socket, identified by a stable id.
type Connection struct {
	id     string
	socket Socket
	logger *zap.Logger

	state atomic.Int32 // ReadyState

	onInvoke      func(c *Connection, f frame.Frame)
	onParserError func(c *Connection, raw string)
	onIgnored     func(c *Connection, f frame.Frame)
	onClose       func(c *Connection, reason string, err error)
	onError       func(c *Connection, err error)
}

// New wraps socket in a new Connection with the given id. Callers
// (nydusserver.Server.Accept) register the lifecycle callbacks before any
// message can arrive by constructing the Connection first and wiring the
// socket's notification hooks to it immediately after.
func New(id string, socket Socket, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{id: id, socket: socket, logger: logger}
	c.state.Store(int32(StateOpening))

	socket.OnMessage(c.handleMessage)
	socket.OnClose(c.handleClose)
	socket.OnError(c.handleError)

	return c
}

// ID returns the connection's stable identity. Connection satisfies
// subscription.Subscriber via ID and SendPublish.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() ReadyState { return ReadyState(c.state.Load()) }

// MarkOpen transitions the connection to Open, called once the welcome
// frame has been sent.
func (c *Connection) MarkOpen() { c.state.Store(int32(StateOpen)) }

// OnInvoke registers the callback invoked for each decoded Invoke frame.
func (c *Connection) OnInvoke(fn func(c *Connection, f frame.Frame)) { c.onInvoke = fn }

// OnParserError registers the callback invoked when an inbound frame fails
// to decode. The connection closes itself immediately afterward.
func (c *Connection) OnParserError(fn func(c *Connection, raw string)) { c.onParserError = fn }

// OnIgnoredFrame registers the callback invoked for a structurally valid
// inbound frame of a type the server role doesn't accept (Result, Error,
// Welcome, Publish) — spec.md §9 Open Question (b): log rather than drop
// silently.
func (c *Connection) OnIgnoredFrame(fn func(c *Connection, f frame.Frame)) { c.onIgnored = fn }

// OnClose registers the callback invoked once the transport closes.
func (c *Connection) OnClose(fn func(c *Connection, reason string, err error)) { c.onClose = fn }

// OnError registers the callback invoked on a transport-level error.
func (c *Connection) OnError(fn func(c *Connection, err error)) { c.onError = fn }

func (c *Connection) handleMessage(raw string) {
	f, err := frame.Decode(raw)
	if err != nil {
		if errors.Is(err, frame.ErrParseFrame) {
			if c.onParserError != nil {
				c.onParserError(c, raw)
			}
			_ = c.socket.Close()
			return
		}
		c.logger.Warn("unexpected decode error", zap.Error(err))
		return
	}

	switch f.Type {
	case frame.TypeInvoke:
		if c.onInvoke != nil {
			c.onInvoke(c, f)
		}
	default:
		// Server role never accepts Result/Error/Welcome/Publish frames
		// inbound. Logged, per spec.md §9 Open Question (b), then dropped.
		if c.onIgnored != nil {
			c.onIgnored(c, f)
		}
	}
}

func (c *Connection) handleClose(reason string, err error) {
	c.state.Store(int32(StateClosed))
	if c.onClose != nil {
		c.onClose(c, reason, err)
	}
}

func (c *Connection) handleError(err error) {
	if c.onError != nil {
		c.onError(c, err)
	}
}

// send encodes and transmits a frame. Send failures are swallowed: the
// connection's eventual close will propagate the termination (spec.md §4.5).
func (c *Connection) send(t frame.Type, data any, id, path string) {
	if c.State() == StateClosed {
		return
	}
	encoded, err := frame.Encode(t, data, id, path)
	if err != nil {
		c.logger.Error("failed to encode outbound frame", zap.Error(err))
		return
	}
	if err := c.socket.Send(encoded); err != nil {
		c.logger.Debug("swallowed send failure", zap.Error(err))
	}
}

// SendWelcome sends the Welcome frame; it must be the first frame sent on
// any new connection (spec.md §3).
func (c *Connection) SendWelcome(version int) {
	c.send(frame.TypeWelcome, version, "", "")
	c.MarkOpen()
}

// SendResult sends a Result frame. hasData distinguishes an absent body
// from an explicit zero value such as 0 or "". A nil data is sent with no
// body whatever hasData says.
func (c *Connection) SendResult(id string, data any, hasData bool) {
	if !hasData {
		c.send(frame.TypeResult, nil, id, "")
		return
	}
	c.send(frame.TypeResult, data, id, "")
}

// SendError sends an Error frame.
func (c *Connection) SendError(id string, payload any) {
	c.send(frame.TypeError, payload, id, "")
}

// SendPublish sends a Publish frame. It satisfies subscription.Subscriber.
func (c *Connection) SendPublish(path string, data any) error {
	if c.State() == StateClosed {
		return errors.New("connection: closed")
	}
	c.send(frame.TypePublish, data, "", path)
	return nil
}

// Close closes the underlying transport.
func (c *Connection) Close() error {
	c.state.Store(int32(StateClosing))
	return c.socket.Close()
}
