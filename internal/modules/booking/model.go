// README: Booking record, status definitions and lifecycle transitions.
package booking

import (
	"fmt"
	"time"

	"taxidispatch/internal/types"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusAssigned  Status = "Assigned"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// AllowedTransitions represents the booking lifecycle as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return len(AllowedTransitions[s]) == 0
}

// HoldsDriver reports whether a booking in this status must carry a driver id.
func (s Status) HoldsDriver() bool {
	return s == StatusAssigned || s == StatusCompleted
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid booking status %q", v)
	}
	return s, nil
}

// Place is a labelled, already-resolved coordinate.
type Place struct {
	Label string
	Point types.Point
}

type Booking struct {
	ID         types.ID
	CustomerID types.ID
	Pickup     Place
	Dropoff    Place
	Date       string // YYYY-MM-DD
	Time       string // HH:MM, 24h
	Status     Status
	DriverID   types.ID
}

// ScheduledAt parses the stored date and time. Stored records may carry
// unparseable values; callers decide how to treat the error.
func (b *Booking) ScheduledAt() (time.Time, error) {
	return ParseSchedule(b.Date, b.Time)
}

func (b *Booking) Editable() bool {
	return b.Status == StatusPending
}

// Active reports whether the booking still occupies its driver's schedule.
func (b *Booking) Active() bool {
	return b.Status != StatusCancelled
}

// Assign binds a driver to a pending booking.
func (b *Booking) Assign(driverID types.ID) error {
	if driverID == "" {
		return ErrBadRequest
	}
	if !CanTransition(b.Status, StatusAssigned) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, b.Status, StatusAssigned)
	}
	b.DriverID = driverID
	b.Status = StatusAssigned
	return nil
}

func (b *Booking) Complete() error {
	if !CanTransition(b.Status, StatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, b.Status, StatusCompleted)
	}
	b.Status = StatusCompleted
	return nil
}

// Cancel moves the booking to Cancelled and releases its driver.
func (b *Booking) Cancel() error {
	if !CanTransition(b.Status, StatusCancelled) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, b.Status, StatusCancelled)
	}
	b.Status = StatusCancelled
	b.DriverID = ""
	return nil
}

// CheckInvariants verifies the status/driver pairing.
func (b *Booking) CheckInvariants() error {
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrBadRequest, b.Status)
	}
	if b.Status.HoldsDriver() != (b.DriverID != "") {
		return fmt.Errorf("%w: status %s with driver %q", ErrInvalidState, b.Status, b.DriverID)
	}
	return nil
}
