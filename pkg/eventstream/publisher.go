// Package eventstream defines the events a blackboard store emits and the
// publisher interface that carries them to other processes.
package eventstream

import "context"

// Publisher publishes store events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
