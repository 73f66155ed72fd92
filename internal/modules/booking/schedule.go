// README: Scheduled date/time parsing and the driver conflict window.
package booking

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// ConflictWindow is how close two bookings of one driver may be scheduled.
	// Trips have no end time, so the window applies symmetrically around the start.
	ConflictWindow = 2 * time.Hour
)

// ParseSchedule combines a YYYY-MM-DD date and HH:MM time into a wall-clock
// instant. All schedules share one location, so UTC is used throughout.
func ParseSchedule(date, clock string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q %q: %w", date, clock, err)
	}
	return t, nil
}

func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrBadRequest)
	}
	return nil
}

func ValidateTime(clock string) error {
	if _, err := time.Parse(TimeLayout, clock); err != nil {
		return fmt.Errorf("%w: time must be HH:MM (24-hour)", ErrBadRequest)
	}
	return nil
}

// Conflicts reports whether two scheduled instants fall inside one conflict window.
func Conflicts(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < ConflictWindow
}
