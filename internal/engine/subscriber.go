package engine

import (
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber event queue. A subscriber that
// falls this far behind starts losing events; the transport layer is
// expected to drain promptly or disconnect.
const subscriberBuffer = 256

// Subscriber is a connected event consumer. It has no persistent identity;
// the name exists only to make logs readable.
type Subscriber struct {
	id      uuid.UUID
	name    string
	events  chan Event
	dropped uint64
}

func newSubscriber() *Subscriber {
	return &Subscriber{
		id:     uuid.New(),
		name:   petname.Generate(2, "-"),
		events: make(chan Event, subscriberBuffer),
	}
}

// ID returns the subscriber's connection ID.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Name returns the human-readable connection name used in logs.
func (s *Subscriber) Name() string { return s.name }

// Events returns the subscriber's event stream. The channel is closed on
// unsubscribe.
func (s *Subscriber) Events() <-chan Event { return s.events }
