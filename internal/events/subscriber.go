package events

import "github.com/alfredjeanlab/metarev/internal/model"

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers the events whose topic matches pattern. NATS
	// wildcards are allowed. Call the returned cancel function to
	// unsubscribe and close the channel.
	Subscribe(pattern string) (<-chan *model.Event, func(), error)
	Close() error
}
