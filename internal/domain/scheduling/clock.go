package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the number of minutes between 00:00 and 24:00.
const MinutesPerDay = 24 * 60

// TimeToMinutes converts an "HH:MM" wall-clock string to minutes since 00:00.
// Hours are not bounded above; callers that need a same-day time use
// ParseClock.
func TimeToMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return h*60 + m, nil
}

// MinutesToTime formats minutes since 00:00 as zero-padded "HH:MM". There is
// no day wraparound: 1500 formats as "25:00". Negative input yields "00:00".
func MinutesToTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock is TimeToMinutes restricted to a single day (00:00..23:59).
func ParseClock(s string) (int, error) {
	m, err := TimeToMinutes(s)
	if err != nil {
		return 0, err
	}
	if m >= MinutesPerDay {
		return 0, fmt.Errorf("%w: %q is past midnight", ErrInvalidTimeFormat, s)
	}
	return m, nil
}

// TimeRange is a half-open [Start, End) interval in minutes since 00:00.
type TimeRange struct {
	Start int
	End   int
}

// ParseTimeRange parses a start/end pair and checks start < end.
func ParseTimeRange(start, end string) (TimeRange, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if s >= e {
		return TimeRange{}, fmt.Errorf("%w: start %s must be before end %s", ErrValidation, start, end)
	}
	return TimeRange{Start: s, End: e}, nil
}

// StartClock returns the range start as "HH:MM".
func (r TimeRange) StartClock() string { return MinutesToTime(r.Start) }

// EndClock returns the range end as "HH:MM".
func (r TimeRange) EndClock() string { return MinutesToTime(r.End) }

// Duration returns the range length in minutes.
func (r TimeRange) Duration() int { return r.End - r.Start }

func (r TimeRange) String() string {
	return r.StartClock() + "-" + r.EndClock()
}
