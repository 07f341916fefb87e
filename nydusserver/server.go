// Package nydusserver owns the engine instance, the connection map, the
// router, and the subscription registry; it implements the invoke-dispatch
// pipeline including error conversion (spec.md §4.6).
package nydusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tec27/nydus/connection"
	"github.com/tec27/nydus/frame"
	"github.com/tec27/nydus/middleware"
	"github.com/tec27/nydus/registry"
	"github.com/tec27/nydus/router"
	"github.com/tec27/nydus/subscription"
	"go.uber.org/zap"
)

// Server is the process-wide (per-attachment) core described in spec.md §3.
//
// Every mutation of clients, routes, and subs happens while mu is held,
// realizing spec.md §5's single-logical-thread requirement on top of Go's
// OS threads: "implementations that use OS threads MUST serialize all such
// mutations on a single lock."
type Server struct {
	mu      sync.Mutex
	clients map[string]*connection.Connection
	router  *router.Router
	subs    *subscription.Registry

	logger         *zap.Logger
	errorConverter ErrorConverter
	devMode        bool
	idGen          connection.IDGenerator

	presenceRegistry registry.Registry
	presenceName     string
	advertiseAddr    string

	onConnection  []func(*connection.Connection)
	onError       []func(error)
	onParserError []func(*connection.Connection, string)
	onInvokeError []func(err error, c *connection.Connection, rawMessage string)
}

// New constructs a Server. Defaults: no-op logger, DefaultErrorConverter in
// dev mode, a google/uuid-backed id generator.
func New(opts ...Option) *Server {
	s := &Server{
		clients: make(map[string]*connection.Connection),
		router:  router.New(),
		subs:    subscription.New(),
		logger:  zap.NewNop(),
		devMode: true,
		idGen:   connection.NewUUIDGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Computed after opts run so WithDevMode actually affects the default
	// converter's closure. WithErrorConverter, if given, already set
	// errorConverter above and wins here.
	if s.errorConverter == nil {
		s.errorConverter = DefaultErrorConverter(s.devMode)
	}
	return s
}

// Start registers presence in the optional multi-instance registry, if
// configured. It is safe to call on a Server with no registry configured.
func (s *Server) Start() error {
	if s.presenceRegistry == nil {
		return nil
	}
	return s.presenceRegistry.Register(s.presenceName, s.presenceInstance(), 10)
}

func (s *Server) presenceInstance() registry.ServiceInstance {
	s.mu.Lock()
	count := len(s.clients)
	s.mu.Unlock()
	return registry.ServiceInstance{
		Addr:            s.advertiseAddr,
		ConnectionCount: count,
		ProtocolVersion: frame.ProtocolVersion,
	}
}

// heartbeatPresence refreshes this instance's advertised ConnectionCount, if
// a registry is configured. Called after every Accept and disconnect so a
// loadbalance.WeightedRandomBalancer pick reflects near-current occupancy
// instead of the count at Start.
func (s *Server) heartbeatPresence() {
	if s.presenceRegistry == nil {
		return
	}
	if err := s.presenceRegistry.Heartbeat(s.presenceName, s.presenceInstance()); err != nil {
		s.emitError(fmt.Errorf("nydusserver: presence heartbeat: %w", err))
	}
}

// OnConnection registers a callback fired once a new client's welcome frame
// has been sent (spec.md §6).
func (s *Server) OnConnection(fn func(*connection.Connection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnection = append(s.onConnection, fn)
}

// OnError registers a callback for general engine/converter failures.
func (s *Server) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// OnParserError registers a callback fired when an inbound frame fails to
// decode, carrying the offending raw message.
func (s *Server) OnParserError(fn func(*connection.Connection, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onParserError = append(s.onParserError, fn)
}

// OnInvokeError registers a callback fired when a handler's rejection was
// converted to a 500, letting operators distinguish genuine server errors
// from expected client errors (spec.md §4.6). rawMessage is the invoke frame
// in wire form, re-encoded from its decoded fields.
func (s *Server) OnInvokeError(fn func(err error, c *connection.Connection, rawMessage string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvokeError = append(s.onInvokeError, fn)
}

// RegisterRoute composes handlers and appends (pattern, composed) to the
// router. Composing zero handlers is rejected here, surfacing
// middleware.Compose's registration-time error (spec.md §4.3).
func (s *Server) RegisterRoute(pattern string, handlers ...middleware.Handler) error {
	composed, err := middleware.Compose(handlers...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Register(pattern, composed)
}

// Accept wraps socket in a Connection, assigns it an id (retrying on
// collision against the live clients map), inserts it, and sends Welcome as
// the first frame, then emits the connection signal (spec.md §4.6).
func (s *Server) Accept(socket connection.Socket) (*connection.Connection, error) {
	id, err := s.allocateID()
	if err != nil {
		return nil, fmt.Errorf("nydusserver: failed to allocate client id: %w", err)
	}

	c := connection.New(id, socket, s.logger)
	c.OnInvoke(s.handleInvoke)
	c.OnParserError(s.handleParserError)
	c.OnIgnoredFrame(s.handleIgnoredFrame)
	c.OnClose(func(c *connection.Connection, reason string, err error) { s.handleDisconnect(c) })

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	s.heartbeatPresence()

	c.SendWelcome(frame.ProtocolVersion)

	s.mu.Lock()
	listeners := append([]func(*connection.Connection){}, s.onConnection...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}

	return c, nil
}

func (s *Server) allocateID() (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		id, err := s.idGen()
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		_, exists := s.clients[id]
		s.mu.Unlock()
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("nydusserver: could not allocate a unique client id")
}

func (s *Server) handleParserError(c *connection.Connection, raw string) {
	s.mu.Lock()
	listeners := append([]func(*connection.Connection, string){}, s.onParserError...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(c, raw)
	}
}

func (s *Server) handleIgnoredFrame(c *connection.Connection, f frame.Frame) {
	s.logger.Debug("ignored inbound frame", zap.String("client", c.ID()), zap.String("type", f.Type.String()))
}

func (s *Server) handleDisconnect(c *connection.Connection) {
	s.mu.Lock()
	delete(s.clients, c.ID())
	s.subs.UnsubscribeClientAll(c.ID())
	s.mu.Unlock()
	s.heartbeatPresence()
}

// handleInvoke implements the dispatch path of spec.md §4.6.
func (s *Server) handleInvoke(c *connection.Connection, f frame.Frame) {
	s.mu.Lock()
	match, ok := s.router.Match(f.Path)
	s.mu.Unlock()

	if !ok {
		c.SendError(f.ID, ErrorPayload{Status: errNotFound.Status, Message: errNotFound.Message})
		return
	}

	handler, ok := match.Action.(middleware.Handler)
	if !ok {
		s.logger.Error("router action is not a middleware.Handler", zap.String("pattern", match.Pattern))
		c.SendError(f.ID, ErrorPayload{Status: 500, Message: "Internal Server Error"})
		return
	}

	ic := middleware.InvocationContext{
		Server: s,
		Client: c,
		Path:   match.Pattern,
		Params: match.Params,
		Splats: match.Splats,
	}
	if f.HasData {
		var body any
		if err := json.Unmarshal(f.Data, &body); err == nil {
			ic = ic.WithBody(body)
		}
	}

	result, err := middleware.Invoke(context.Background(), handler, ic)
	if err != nil {
		s.dispatchError(c, f, err)
		return
	}
	c.SendResult(f.ID, result, result != nil)
}

func (s *Server) dispatchError(c *connection.Connection, f frame.Frame, err error) {
	var payload ErrorPayload
	converted := func() (p ErrorPayload, convErr error) {
		defer func() {
			if r := recover(); r != nil {
				convErr = fmt.Errorf("error converter panicked: %v", r)
			}
		}()
		p = s.errorConverter(err, c.ID())
		return p, nil
	}
	var convErr error
	payload, convErr = converted()
	if convErr != nil {
		s.emitError(convErr)
		c.SendError(f.ID, ErrorPayload{Status: 500, Message: "Internal Server Error"})
		return
	}

	c.SendError(f.ID, payload)

	if payload.Status == 500 {
		var body any
		if f.HasData {
			body = f.Data
		}
		raw, _ := frame.Encode(frame.TypeInvoke, body, f.ID, f.Path)
		s.mu.Lock()
		listeners := append([]func(error, *connection.Connection, string){}, s.onInvokeError...)
		s.mu.Unlock()
		for _, fn := range listeners {
			fn(err, c, raw)
		}
	}
}

func (s *Server) emitError(err error) {
	s.mu.Lock()
	listeners := append([]func(error){}, s.onError...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Publish fans data out to every client currently subscribed to path.
func (s *Server) Publish(path string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.Publish(path, data)
}

// Subscribe subscribes c to path, optionally sending an already-resolved
// initialData value immediately to this client only.
func (s *Server) Subscribe(c *connection.Connection, path string, data any, hasData bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.SubscribeValue(c, path, data, hasData)
}

// SubscribeDeferred subscribes c to path immediately, then resolves initial
// off the locked path and delivers it once it settles. The resolve itself
// runs unlocked, since it may block on arbitrary application code, but the
// recheck of c's subscription and the send are both done after re-acquiring
// mu, so they observe and mutate the registry on the same logical thread as
// every other Server method.
func (s *Server) SubscribeDeferred(c *connection.Connection, path string, initial subscription.InitialDataFunc) {
	s.mu.Lock()
	s.subs.Subscribe(c, path)
	s.mu.Unlock()

	if initial == nil {
		return
	}
	go func() {
		data, ok, err := initial(context.Background())
		if err != nil || !ok {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.subs.IsSubscribed(c.ID(), path) {
			return
		}
		_ = c.SendPublish(path, data)
	}()
}

// Unsubscribe removes c's subscription to path, reporting whether a change
// occurred.
func (s *Server) Unsubscribe(c *connection.Connection, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.UnsubscribeClient(c.ID(), path)
}

// UnsubscribeAll removes every subscriber of path.
func (s *Server) UnsubscribeAll(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.UnsubscribeAll(path)
}

// Close iterates the clients map, closing each connection, then
// deregisters presence from the optional multi-instance registry.
// Subscriptions are implicitly torn down via each client's own disconnect
// handler as Close runs (spec.md §4.6).
func (s *Server) Close() error {
	s.mu.Lock()
	clients := make([]*connection.Connection, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}

	s.mu.Lock()
	s.clients = make(map[string]*connection.Connection)
	s.mu.Unlock()

	if s.presenceRegistry != nil {
		return s.presenceRegistry.Deregister(s.presenceName, s.advertiseAddr)
	}
	return nil
}
