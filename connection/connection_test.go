package connection

import (
	"encoding/json"
	"testing"

	"github.com/tec27/nydus/frame"
)

type fakeSocket struct {
	sent      []string
	closed    bool
	onMessage func(string)
	onClose   func(string, error)
	onError   func(error)
}

func (s *fakeSocket) Send(f string) error {
	s.sent = append(s.sent, f)
	return nil
}
func (s *fakeSocket) Close() error                  { s.closed = true; return nil }
func (s *fakeSocket) ReadyState() ReadyState        { return StateOpen }
func (s *fakeSocket) OnMessage(fn func(string))     { s.onMessage = fn }
func (s *fakeSocket) OnClose(fn func(string, error)) { s.onClose = fn }
func (s *fakeSocket) OnError(fn func(error))        { s.onError = fn }
func (s *fakeSocket) deliver(raw string)            { s.onMessage(raw) }

func TestSendWelcomeIsFirstFrame(t *testing.T) {
	sock := &fakeSocket{}
	c := New("abc", sock, nil)
	c.SendWelcome(frame.ProtocolVersion)

	if len(sock.sent) != 1 {
		t.Fatalf("expected 1 sent frame, got %d", len(sock.sent))
	}
	f, err := frame.Decode(sock.sent[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	var version int
	json.Unmarshal(f.Data, &version)
	if f.Type != frame.TypeWelcome || version != frame.ProtocolVersion {
		t.Fatalf("unexpected welcome frame: %+v", f)
	}
	if c.State() != StateOpen {
		t.Fatalf("expected state Open after welcome, got %v", c.State())
	}
}

func TestInboundInvokeDispatched(t *testing.T) {
	sock := &fakeSocket{}
	c := New("abc", sock, nil)

	var got frame.Frame
	c.OnInvoke(func(c *Connection, f frame.Frame) { got = f })

	raw, _ := frame.Encode(frame.TypeInvoke, "hi", "27", "/hello")
	sock.deliver(raw)

	if got.Type != frame.TypeInvoke || got.ID != "27" || got.Path != "/hello" {
		t.Fatalf("unexpected dispatched frame: %+v", got)
	}
}

func TestInboundParserErrorClosesSocket(t *testing.T) {
	sock := &fakeSocket{}
	c := New("abc", sock, nil)

	var raw string
	c.OnParserError(func(c *Connection, r string) { raw = r })

	sock.deliver("garbage")

	if raw != "garbage" {
		t.Fatalf("expected parser error callback with raw message")
	}
	if !sock.closed {
		t.Fatalf("expected socket closed after parser error")
	}
}

func TestInboundResultFrameIsIgnoredButReported(t *testing.T) {
	sock := &fakeSocket{}
	c := New("abc", sock, nil)

	var ignored frame.Frame
	c.OnInvoke(func(c *Connection, f frame.Frame) { t.Fatal("should not dispatch as invoke") })
	c.OnIgnoredFrame(func(c *Connection, f frame.Frame) { ignored = f })

	raw, _ := frame.Encode(frame.TypeResult, "x", "1", "")
	sock.deliver(raw)

	if ignored.Type != frame.TypeResult {
		t.Fatalf("expected ignored Result frame reported, got %+v", ignored)
	}
}

func TestCloseInvokesOnClose(t *testing.T) {
	sock := &fakeSocket{}
	c := New("abc", sock, nil)

	var reason string
	c.OnClose(func(c *Connection, r string, err error) { reason = r })

	sock.onClose("bye", nil)

	if reason != "bye" {
		t.Fatalf("expected close callback invoked")
	}
	if c.State() != StateClosed {
		t.Fatalf("expected state Closed")
	}
}

func TestSendAfterCloseIsNoop(t *testing.T) {
	sock := &fakeSocket{}
	c := New("abc", sock, nil)
	sock.onClose("bye", nil)

	if err := c.SendPublish("/x", "y"); err == nil {
		t.Fatalf("expected error sending publish after close")
	}
	if len(sock.sent) != 0 {
		t.Fatalf("expected no frames sent after close")
	}
}
