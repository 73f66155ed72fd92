// README: Booking lifecycle events and the publisher abstraction services emit them through.
package events

import (
	"context"
	"sync"
	"time"

	"taxidispatch/internal/types"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingUpdated   Type = "booking.updated"
	BookingAssigned  Type = "booking.assigned"
	BookingCancelled Type = "booking.cancelled"
	BookingCompleted Type = "booking.completed"
)

type Event struct {
	Type       Type      `json:"type"`
	BookingID  types.ID  `json:"booking_id"`
	CustomerID types.ID  `json:"customer_id"`
	DriverID   types.ID  `json:"driver_id,omitempty"`
	Status     string    `json:"status"`
	Override   bool      `json:"override,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events. Publish failures never roll back the state
// change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
