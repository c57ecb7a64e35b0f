package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// NATSPublisher publishes events to NATS subjects named after their topic.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS. Extra options are passed to nats.Connect.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name("metarev-publisher")}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends the event payload with the post id and actor as headers.
func (p *NATSPublisher) Publish(ctx context.Context, event *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.PublishMsg(toMsg(event))
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

func toMsg(e *model.Event) *nats.Msg {
	msg := nats.NewMsg(e.Topic)
	msg.Data = e.Payload
	if e.PostID != 0 {
		msg.Header.Set(HeaderPostID, strconv.FormatInt(e.PostID, 10))
	}
	if e.Actor != "" {
		msg.Header.Set(HeaderActor, e.Actor)
	}
	return msg
}

// fromMsg rebuilds an event from a message. Messages without headers yield
// an event with only the topic and payload set.
func fromMsg(msg *nats.Msg) *model.Event {
	e := &model.Event{Topic: msg.Subject, Payload: msg.Data}
	if msg.Header != nil {
		e.PostID, _ = strconv.ParseInt(msg.Header.Get(HeaderPostID), 10, 64)
		e.Actor = msg.Header.Get(HeaderActor)
	}
	return e
}

// NATSSubscriber subscribes to events from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to NATS, reconnecting forever once connected.
// Extra options (e.g. disconnect/reconnect handlers) are appended.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("metarev-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// feed delivers one subscription's messages to a channel. Messages that
// arrive while the channel is full are dropped so the NATS client never
// blocks.
type feed struct {
	mu     sync.Mutex
	ch     chan *model.Event
	closed bool
}

func (f *feed) deliver(msg *nats.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- fromMsg(msg):
	default:
	}
}

// close discards anything still buffered, then closes the channel.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for len(f.ch) > 0 {
		<-f.ch
	}
	close(f.ch)
}

// Subscribe implements Subscriber.
func (s *NATSSubscriber) Subscribe(pattern string) (<-chan *model.Event, func(), error) {
	f := &feed{ch: make(chan *model.Event, 64)}
	sub, err := s.conn.Subscribe(pattern, f.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	// Make sure the server has the interest before returning so events
	// published right after are routed to us.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		_ = sub.Unsubscribe()
		f.close()
	}
	return f.ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
