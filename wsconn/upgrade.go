package wsconn

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Upgrader wraps websocket.Upgrader with the defaults nydus expects: text
// frames only, no per-message compression (the core never produces binary
// payloads, per spec.md's Non-goals).
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an HTTP request to a websocket and wraps it as a Socket.
// HTTP upgrade handling is explicitly out of scope for the core (spec.md
// §1); this is the thin glue a caller's own HTTP handler uses to bridge
// into it, kept separate from the core's package boundary.
func Accept(w http.ResponseWriter, r *http.Request) (*Socket, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
