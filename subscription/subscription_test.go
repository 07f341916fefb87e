package subscription

import (
	"sync"
	"testing"
)

type fakeClient struct {
	id  string
	mu  sync.Mutex
	got []string
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) SendPublish(path string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, _ := data.(string)
	c.got = append(c.got, path+":"+s)
	return nil
}

func (c *fakeClient) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	copy(out, c.got)
	return out
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := New()
	a := &fakeClient{id: "a"}
	r.Subscribe(a, "/hello")
	r.Subscribe(a, "/hello")
	if r.SubscriberCount("/hello") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", r.SubscriberCount("/hello"))
	}
}

func TestPublishFanOut(t *testing.T) {
	r := New()
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r.Subscribe(a, "/hello")
	r.SubscribeValue(b, "/hello", "hi", true)

	if got := b.received(); len(got) != 1 || got[0] != "/hello:hi" {
		t.Fatalf("expected b to receive initial data immediately, got %v", got)
	}
	if got := a.received(); len(got) != 0 {
		t.Fatalf("expected a to receive nothing yet, got %v", got)
	}

	r.Publish("/hello", "world")

	if got := a.received(); len(got) != 1 || got[0] != "/hello:world" {
		t.Fatalf("unexpected a.received(): %v", got)
	}
	if got := b.received(); len(got) != 2 || got[1] != "/hello:world" {
		t.Fatalf("unexpected b.received(): %v", got)
	}
}

func TestPublishToNoSubscribersIsNoop(t *testing.T) {
	r := New()
	r.Publish("/nobody", "x") // must not panic
}

func TestUnsubscribeClientStopsDelivery(t *testing.T) {
	r := New()
	a := &fakeClient{id: "a"}
	r.Subscribe(a, "/hello")

	if changed := r.UnsubscribeClient("a", "/hello"); !changed {
		t.Fatal("expected a change")
	}
	if changed := r.UnsubscribeClient("a", "/hello"); changed {
		t.Fatal("expected no change on repeat unsubscribe")
	}

	r.Publish("/hello", "world")
	if got := a.received(); len(got) != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %v", got)
	}
	if r.SubscriberCount("/hello") != 0 {
		t.Fatalf("expected empty path entry pruned")
	}
}

func TestUnsubscribeAllClearsEveryClient(t *testing.T) {
	r := New()
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	r.Subscribe(a, "/hello")
	r.Subscribe(b, "/hello")

	if changed := r.UnsubscribeAll("/hello"); !changed {
		t.Fatal("expected a change")
	}
	r.Publish("/hello", "world")
	if len(a.received()) != 0 || len(b.received()) != 0 {
		t.Fatal("expected no delivery after UnsubscribeAll")
	}
	if r.IsSubscribed("a", "/hello") || r.IsSubscribed("b", "/hello") {
		t.Fatal("expected bidirectional invariant maintained after UnsubscribeAll")
	}
}

func TestUnsubscribeClientAllOnDisconnect(t *testing.T) {
	r := New()
	a := &fakeClient{id: "a"}
	r.Subscribe(a, "/one")
	r.Subscribe(a, "/two")

	r.UnsubscribeClientAll("a")

	if r.IsSubscribed("a", "/one") || r.IsSubscribed("a", "/two") {
		t.Fatal("expected all subscriptions removed")
	}
	if r.SubscriberCount("/one") != 0 || r.SubscriberCount("/two") != 0 {
		t.Fatal("expected empty path entries pruned")
	}
}
