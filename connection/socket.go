package connection

// ReadyState mirrors the transport-level connection state, queryable on the
// underlying Socket (spec.md §6).
type ReadyState int

const (
	StateOpening ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Socket is the transport contract a Connection wraps (spec.md §6). It is an
// external collaborator: the core never assumes anything about the
// underlying byte transport beyond ordered, reliable delivery of UTF-8
// strings and these four notification hooks. wsconn.Socket is the
// production implementation backed by gorilla/websocket.
type Socket interface {
	// Send transmits a single already-encoded frame. Implementations should
	// not block indefinitely; Connection treats a Send failure as
	// fire-and-forget (spec.md §4.5).
	Send(frame string) error
	// Close closes the underlying transport.
	Close() error
	// ReadyState reports the current transport state.
	ReadyState() ReadyState

	// OnMessage registers the callback invoked for each inbound frame, one
	// discrete string per message, in order.
	OnMessage(func(frame string))
	// OnClose registers the callback invoked once when the transport closes.
	OnClose(func(reason string, err error))
	// OnError registers the callback invoked on a transport-level error.
	OnError(func(err error))
}
