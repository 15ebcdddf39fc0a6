package types

import (
	"fmt"
	"strconv"
	"strings"
)

// AvailabilitySlot is one weekly window. Times are minutes after midnight.
type AvailabilitySlot struct {
	DayOfWeek   int // 0 = Monday
	StartMinute int
	EndMinute   int
}

// Duration returns the slot length in minutes, never negative
func (s AvailabilitySlot) Duration() int {
	if s.EndMinute <= s.StartMinute {
		return 0
	}
	return s.EndMinute - s.StartMinute
}

// Validate checks the slot is storable
func (s AvailabilitySlot) Validate() error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return ErrInvalidSlot
	}
	if s.StartMinute < 0 || s.EndMinute > 24*60 || s.StartMinute >= s.EndMinute {
		return ErrInvalidSlot
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q: bad minute", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
