package alerts

import (
	"fmt"
	"time"
)

// QuietHours suppresses alert delivery during a clinic's configured
// do-not-disturb window, evaluated in the clinic's timezone. Windows may
// cross midnight (21:00-08:00).
type QuietHours struct {
	StartMinutes int
	EndMinutes   int

	location *time.Location
	enabled  bool
}

// ParseQuietHours builds a QuietHours window from HH:MM clock strings and an
// IANA timezone name. Empty start and end produce a disabled window.
func ParseQuietHours(start, end, tz string) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}

	startMin, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("alerts: invalid quiet hours start %q: %w", start, err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("alerts: invalid quiet hours end %q: %w", end, err)
	}

	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return QuietHours{}, fmt.Errorf("alerts: invalid timezone %q: %w", tz, err)
	}

	return QuietHours{
		StartMinutes: startMin,
		EndMinutes:   endMin,
		location:     loc,
		enabled:      true,
	}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Suppress reports whether t falls inside the quiet window. A window whose
// start equals its end never suppresses.
func (q QuietHours) Suppress(t time.Time) bool {
	if !q.enabled || q.StartMinutes == q.EndMinutes {
		return false
	}

	local := t.In(q.location)
	minutes := local.Hour()*60 + local.Minute()

	if q.StartMinutes < q.EndMinutes {
		return minutes >= q.StartMinutes && minutes < q.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= q.StartMinutes || minutes < q.EndMinutes
}
