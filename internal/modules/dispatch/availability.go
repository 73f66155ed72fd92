// README: Driver availability against the booking conflict window.
package dispatch

import (
	"time"

	"taxidispatch/internal/modules/booking"
)

// IsAvailable reports whether a driver holding bookings is free at candidate.
// Cancelled bookings never block. A booking whose stored date or time does
// not parse is skipped, so a corrupt record cannot lock a driver out.
func IsAvailable(candidate time.Time, bookings []*booking.Booking) bool {
	for _, b := range bookings {
		if blocks(candidate, b) {
			return false
		}
	}
	return true
}

// Conflicting returns the bookings that make a driver unavailable at candidate.
func Conflicting(candidate time.Time, bookings []*booking.Booking) []*booking.Booking {
	var out []*booking.Booking
	for _, b := range bookings {
		if blocks(candidate, b) {
			out = append(out, b)
		}
	}
	return out
}

func blocks(candidate time.Time, b *booking.Booking) bool {
	if b == nil || !b.Active() {
		return false
	}
	at, err := b.ScheduledAt()
	if err != nil {
		return false
	}
	return booking.Conflicts(candidate, at)
}
