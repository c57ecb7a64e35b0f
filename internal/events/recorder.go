package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// EventStore persists events.
type EventStore interface {
	RecordEvent(ctx context.Context, event *model.Event) error
}

// Broadcaster receives every recorded event, e.g. for streaming to clients.
type Broadcaster interface {
	Broadcast(event *model.Event)
}

// Recorder persists events to the store and publishes them. Both steps are
// best-effort; failures are logged but never returned to the caller.
type Recorder struct {
	store        EventStore
	publisher    Publisher
	broadcasters []Broadcaster
	logger       *slog.Logger
}

// NewRecorder returns a Recorder. A nil publisher means events are only stored.
func NewRecorder(s EventStore, p Publisher, logger *slog.Logger) *Recorder {
	if p == nil {
		p = &NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, publisher: p, logger: logger}
}

// AddBroadcaster attaches a broadcaster that sees every event after it is
// published. Broadcasters are added during setup, before events flow.
func (r *Recorder) AddBroadcaster(b Broadcaster) {
	r.broadcasters = append(r.broadcasters, b)
}

// Emit records and publishes one event.
func (r *Recorder) Emit(ctx context.Context, topic string, postID int64, actor string, event any) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("failed to marshal event", "topic", topic, "post_id", postID, "err", err)
		return
	}
	record := &model.Event{
		Topic:   topic,
		PostID:  postID,
		Actor:   actor,
		Payload: payload,
	}
	if r.store != nil {
		if err := r.store.RecordEvent(ctx, record); err != nil {
			r.logger.Warn("failed to record event", "topic", topic, "post_id", postID, "err", err)
		}
	}
	if err := r.publisher.Publish(ctx, record); err != nil {
		r.logger.Warn("failed to publish event", "topic", topic, "post_id", postID, "err", err)
	}
	for _, b := range r.broadcasters {
		b.Broadcast(record)
	}
}
