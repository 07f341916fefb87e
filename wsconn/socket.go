// Package wsconn provides the production connection.Socket implementation,
// backed by github.com/gorilla/websocket. It is the concrete realization of
// the transport collaborator spec.md describes as external to the core:
// HTTP upgrade handling itself stays the caller's responsibility (spec.md
// §1), this package only wraps an already-upgraded *websocket.Conn.
package wsconn

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tec27/nydus/connection"
)

// Socket adapts a *websocket.Conn to connection.Socket.
type Socket struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla/websocket forbids concurrent writers on one conn
	state   atomic.Int32

	onMessage func(string)
	onClose   func(string, error)
	onError   func(error)

	readOnce sync.Once
}

// New wraps conn and starts its read pump in a background goroutine. Call
// this once the HTTP upgrade has completed.
func New(conn *websocket.Conn) *Socket {
	s := &Socket{conn: conn}
	s.state.Store(int32(connection.StateOpen))
	s.readOnce.Do(func() { go s.readLoop() })
	return s
}

func (s *Socket) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.state.Store(int32(connection.StateClosed))
			reason := "connection closed"
			if ce, ok := err.(*websocket.CloseError); ok {
				reason = ce.Text
			}
			if s.onClose != nil {
				s.onClose(reason, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			// Binary payloads are explicitly out of spec.md's scope; drop
			// them rather than attempting to decode as a text frame.
			continue
		}
		if s.onMessage != nil {
			s.onMessage(string(data))
		}
	}
}

// Send transmits a single text frame.
func (s *Socket) Send(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Close closes the underlying websocket connection.
func (s *Socket) Close() error {
	s.state.Store(int32(connection.StateClosing))
	return s.conn.Close()
}

// ReadyState reports the current transport state.
func (s *Socket) ReadyState() connection.ReadyState {
	return connection.ReadyState(s.state.Load())
}

func (s *Socket) OnMessage(fn func(frame string))          { s.onMessage = fn }
func (s *Socket) OnClose(fn func(reason string, err error)) { s.onClose = fn }
func (s *Socket) OnError(fn func(err error))                { s.onError = fn }

var _ connection.Socket = (*Socket)(nil)
