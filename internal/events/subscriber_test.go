package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// embeddedNATS runs an in-process NATS server on a random loopback port
// for the length of the test.
func embeddedNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	return srv.ClientURL()
}

// newPair connects a publisher and a subscriber to a fresh server.
func newPair(t *testing.T) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	url := embeddedNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func next(t *testing.T, ch <-chan *model.Event) *model.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNATSSubscriber_RoundTrip(t *testing.T) {
	pub, sub := newPair(t)

	ch, cancel, err := sub.Subscribe("metarev.>")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	err = pub.Publish(context.Background(), &model.Event{
		Topic: TopicRevisionRestored, PostID: 12, Actor: "bob", Payload: []byte(`{"post_id":12,"revision_id":30}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	e := next(t, ch)
	if e.Topic != TopicRevisionRestored || e.PostID != 12 || e.Actor != "bob" {
		t.Errorf("event = %+v", e)
	}
	if string(e.Payload) != `{"post_id":12,"revision_id":30}` {
		t.Errorf("payload = %s", e.Payload)
	}
}

func TestNATSSubscriber_MessageWithoutHeaders(t *testing.T) {
	pub, sub := newPair(t)

	ch, cancel, err := sub.Subscribe(TopicPostCreated)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := pub.conn.Publish(TopicPostCreated, []byte(`{"post":{"id":1}}`)); err != nil {
		t.Fatal(err)
	}
	pub.conn.Flush()

	e := next(t, ch)
	if e.Topic != TopicPostCreated || e.PostID != 0 || e.Actor != "" {
		t.Errorf("event = %+v", e)
	}
}

func TestNATSSubscriber_Patterns(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		want    []string
	}{
		{"metarev.>", []string{TopicPostCreated, TopicRevisionCreated, TopicFieldRegistered}},
		{"metarev.revision.*", []string{TopicRevisionCreated}},
		{"metarev.*.created", []string{TopicPostCreated, TopicRevisionCreated}},
	} {
		t.Run(tc.pattern, func(t *testing.T) {
			pub, sub := newPair(t)
			ch, cancel, err := sub.Subscribe(tc.pattern)
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			defer cancel()

			for _, topic := range []string{TopicPostCreated, TopicRevisionCreated, TopicFieldRegistered} {
				if err := pub.Publish(context.Background(), &model.Event{Topic: topic, Payload: []byte(`{}`)}); err != nil {
					t.Fatal(err)
				}
			}
			pub.conn.Flush()

			for _, want := range tc.want {
				if e := next(t, ch); e.Topic != want {
					t.Fatalf("got %s, want %s", e.Topic, want)
				}
			}
			select {
			case e := <-ch:
				t.Fatalf("unexpected event %s", e.Topic)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	pub, sub := newPair(t)

	ch, cancel, err := sub.Subscribe("metarev.>")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Publish concurrently with cancel; neither may panic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = pub.conn.Publish(TopicPostCreated, []byte(`{}`))
		}
		pub.conn.Flush()
	}()
	cancel()
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_ImplementsSubscriber(t *testing.T) {
	var _ Subscriber = (*NATSSubscriber)(nil)
}

func TestNATSSubscriber_AcceptsHandlers(t *testing.T) {
	url := embeddedNATS(t)

	sub, err := NewNATSSubscriber(url,
		nats.DisconnectErrHandler(func(*nats.Conn, error) {}),
		nats.ReconnectHandler(func(*nats.Conn) {}),
	)
	if err != nil {
		t.Fatalf("subscriber: %v", err)
	}
	defer sub.Close()

	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
}
