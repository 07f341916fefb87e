package nydusserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tec27/nydus/connection"
	"github.com/tec27/nydus/frame"
)

type fakeSocket struct {
	sent      []string
	onMessage func(string)
	onClose   func(string, error)
	onError   func(error)
}

func (s *fakeSocket) Send(f string) error               { s.sent = append(s.sent, f); return nil }
func (s *fakeSocket) Close() error                      { return nil }
func (s *fakeSocket) ReadyState() connection.ReadyState { return connection.StateOpen }
func (s *fakeSocket) OnMessage(fn func(string))         { s.onMessage = fn }
func (s *fakeSocket) OnClose(fn func(string, error))    { s.onClose = fn }
func (s *fakeSocket) OnError(fn func(error))            { s.onError = fn }

func TestWithDevModeFalseSuppressesDiagnostics(t *testing.T) {
	s := New(WithDevMode(false))

	payload := s.errorConverter(errors.New("boom"), "client-1")
	if payload.Status != 500 {
		t.Fatalf("expected status 500, got %d", payload.Status)
	}
	if payload.Body != nil {
		t.Fatalf("expected WithDevMode(false) to suppress diagnostic body, got %+v", payload.Body)
	}
}

func TestWithDevModeTrueAttachesDiagnostics(t *testing.T) {
	s := New(WithDevMode(true))

	payload := s.errorConverter(errors.New("boom"), "client-1")
	if payload.Body == nil {
		t.Fatalf("expected WithDevMode(true) to attach a diagnostic body")
	}
}

func TestWithErrorConverterWinsOverDevMode(t *testing.T) {
	custom := func(err error, clientID string) ErrorPayload {
		return ErrorPayload{Status: 599, Message: "custom"}
	}
	s := New(WithDevMode(false), WithErrorConverter(custom))

	payload := s.errorConverter(errors.New("boom"), "client-1")
	if payload.Status != 599 {
		t.Fatalf("expected explicit WithErrorConverter to win, got status %d", payload.Status)
	}
}

func TestSubscribeDeferredRechecksAfterUnsubscribe(t *testing.T) {
	s := New()
	sock := &fakeSocket{}
	c := connection.New("client-1", sock, nil)

	release := make(chan struct{})
	resolved := make(chan struct{})
	s.SubscribeDeferred(c, "/room/1", func(ctx context.Context) (any, bool, error) {
		<-release
		close(resolved)
		return "hello", true, nil
	})

	if !s.Unsubscribe(c, "/room/1") {
		t.Fatalf("expected unsubscribe to report a change")
	}

	close(release)
	<-resolved
	// Give the goroutine a moment to re-acquire s.mu and (incorrectly, if
	// broken) send.
	time.Sleep(10 * time.Millisecond)

	for _, raw := range sock.sent {
		f, err := frame.Decode(raw)
		if err == nil && f.Type == frame.TypePublish {
			t.Fatalf("expected no publish after unsubscribe raced the deferred resolve, got %q", raw)
		}
	}
}

func TestSubscribeDeferredDeliversWhenStillSubscribed(t *testing.T) {
	s := New()
	sock := &fakeSocket{}
	c := connection.New("client-1", sock, nil)

	done := make(chan struct{})
	s.SubscribeDeferred(c, "/room/1", func(ctx context.Context) (any, bool, error) {
		defer close(done)
		return "hello", true, nil
	})
	<-done
	time.Sleep(10 * time.Millisecond)

	found := false
	for _, raw := range sock.sent {
		f, err := frame.Decode(raw)
		if err == nil && f.Type == frame.TypePublish && f.Path == "/room/1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a publish frame for the resolved initial data, got %v", sock.sent)
	}
}
