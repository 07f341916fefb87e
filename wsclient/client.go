// Package wsclient is a client for the nydus wire protocol, used by the
// integration test suite to drive a nydusserver.Server end to end over a
// real websocket. It is grounded on the call/response multiplexing pattern
// of the teacher's client.Client and transport.ClientTransport: a single
// connection is shared by every concurrent Invoke, in-flight calls are
// tracked by id in a map, and a read loop goroutine routes each inbound
// frame back to its waiter by id instead of by sequence number.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tec27/nydus/frame"
	"github.com/tec27/nydus/loadbalance"
	"github.com/tec27/nydus/registry"
)

// Result is what Invoke resolves with when the server answers with a Result
// frame: its raw JSON body. An Error frame is returned as *InvokeError.
type Result struct {
	Data    json.RawMessage
	HasData bool
}

// InvokeError is returned by Invoke when the server answered with an Error
// frame rather than a Result frame.
type InvokeError struct {
	Status  int
	Message string
	Body    json.RawMessage
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("wsclient: invoke error %d: %s", e.Status, e.Message)
}

type pendingCall struct {
	resultCh chan Result
	errCh    chan *InvokeError
}

// Client is one multiplexed connection to a nydus server.
type Client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]*pendingCall
	subs    map[string][]func(data json.RawMessage)

	welcome   chan int
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to url (a ws:// or wss:// address) and starts the read loop.
// It blocks until the server's Welcome frame arrives or the connection
// fails.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		pending: make(map[string]*pendingCall),
		subs:    make(map[string][]func(data json.RawMessage)),
		welcome: make(chan int, 1),
		closed:  make(chan struct{}),
	}
	go c.readLoop()

	select {
	case <-c.welcome:
		return c, nil
	case <-c.closed:
		return nil, fmt.Errorf("wsclient: connection closed before welcome: %w", c.closeErr)
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}

// DialViaRegistry discovers serviceName's instances in reg, picks one with
// bal, and dials it. path is appended to the chosen instance's address to
// form the websocket URL (e.g. "/ws").
func DialViaRegistry(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, serviceName, path string) (*Client, error) {
	instances, err := reg.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	instance, err := bal.Pick(instances)
	if err != nil {
		return nil, err
	}
	url := "ws://" + instance.Addr + path
	return Dial(ctx, url)
}

// DialViaRegistryWithAffinity discovers serviceName's instances in reg and
// pins clientID to whichever one it hashes to on bal's ring, so a client that
// reconnects with the same id (after a dropped socket, say) lands back on the
// instance that already holds its subscription state, rather than being
// spread across instances like a stateless DialViaRegistry call would. Only
// instances speaking at least minProtocolVersion are eligible.
func DialViaRegistryWithAffinity(ctx context.Context, reg registry.Registry, bal *loadbalance.ConsistentHashBalancer, clientID string, minProtocolVersion int, serviceName, path string) (*Client, error) {
	instances, err := reg.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	instance, err := bal.PickForClient(instances, clientID, minProtocolVersion)
	if err != nil {
		return nil, err
	}
	url := "ws://" + instance.Addr + path
	return Dial(ctx, url)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		f, err := frame.Decode(string(data))
		if err != nil {
			c.fail(err)
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame.Frame) {
	switch f.Type {
	case frame.TypeWelcome:
		var version int
		_ = json.Unmarshal(f.Data, &version)
		select {
		case c.welcome <- version:
		default:
		}
	case frame.TypeResult:
		if call := c.takePending(f.ID); call != nil {
			call.resultCh <- Result{Data: f.Data, HasData: f.HasData}
		}
	case frame.TypeError:
		if call := c.takePending(f.ID); call != nil {
			var payload struct {
				Status  int             `json:"status"`
				Message string          `json:"message"`
				Body    json.RawMessage `json:"body"`
			}
			_ = json.Unmarshal(f.Data, &payload)
			call.errCh <- &InvokeError{Status: payload.Status, Message: payload.Message, Body: payload.Body}
		}
	case frame.TypePublish:
		c.mu.Lock()
		handlers := append([]func(json.RawMessage){}, c.subs[f.Path]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(f.Data)
		}
	}
}

func (c *Client) takePending(id string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return call
}

func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
	})
}

// Invoke sends an Invoke frame for path with body and blocks until the
// matching Result or Error frame arrives, or ctx is cancelled.
func (c *Client) Invoke(ctx context.Context, path string, body any) (Result, error) {
	id := newCallID()
	call := &pendingCall{resultCh: make(chan Result, 1), errCh: make(chan *InvokeError, 1)}

	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	encoded, err := frame.Encode(frame.TypeInvoke, body, id, path)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Result{}, err
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(encoded)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Result{}, err
	}

	select {
	case res := <-call.resultCh:
		return res, nil
	case invErr := <-call.errCh:
		return Result{}, invErr
	case <-c.closed:
		return Result{}, fmt.Errorf("wsclient: connection closed: %w", c.closeErr)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Result{}, ctx.Err()
	}
}

// OnPublish registers fn to be called for every Publish frame received for
// path. It does not itself send a subscribe Invoke — subscription is a
// handler-level concern on the server (spec.md §4.4), so tests first Invoke
// whatever route performs the subscribe before registering interest here.
func (c *Client) OnPublish(path string, fn func(data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[path] = append(c.subs[path], fn)
}

// Close closes the underlying websocket.
func (c *Client) Close() error {
	return c.conn.Close()
}

func newCallID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
