package events

import (
	"context"
	"errors"
)

// Publisher delivers events to an observer (event bus, broker, websocket hub).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MultiPublisher fans an event out to every publisher; nil entries are skipped.
// All publishers are attempted and their errors joined.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published event in memory. Handy for tests and the terminal client.
type Recorder struct {
	ch chan Event
}

func NewRecorder(buffer int) *Recorder {
	return &Recorder{ch: make(chan Event, buffer)}
}

// Publish never blocks; events beyond the buffer are dropped.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	select {
	case r.ch <- event:
	default:
	}
	return nil
}

func (r *Recorder) Events() <-chan Event {
	return r.ch
}

// Drain returns the events buffered so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
