package scheduling

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// WorkingWindow is a recurring weekly interval during which a psychologist
// can be booked. DayOfWeek follows time.Weekday (0 = Sunday).
type WorkingWindow struct {
	PsychologistID string       `json:"psychologist_id,omitempty"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	StartTime      string       `json:"start_time"`
	EndTime        string       `json:"end_time"`
}

// Validate checks the day range and that the window is a same-day interval.
func (w WorkingWindow) Validate() error {
	if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
		return fmt.Errorf("%w: day_of_week must be 0..6, got %d", ErrValidation, w.DayOfWeek)
	}
	_, err := ParseTimeRange(w.StartTime, w.EndTime)
	return err
}

func (w WorkingWindow) timeRange() TimeRange {
	r, _ := ParseTimeRange(w.StartTime, w.EndTime)
	return r
}

// AvailabilityIndex maps psychologists to their weekly working windows.
type AvailabilityIndex struct {
	mu      sync.RWMutex
	windows map[string][]WorkingWindow
}

// NewAvailabilityIndex creates an empty index.
func NewAvailabilityIndex() *AvailabilityIndex {
	return &AvailabilityIndex{windows: make(map[string][]WorkingWindow)}
}

// Add appends a window for psychologistID.
func (x *AvailabilityIndex) Add(psychologistID string, w WorkingWindow) error {
	if strings.TrimSpace(psychologistID) == "" {
		return fmt.Errorf("%w: psychologist id is required", ErrValidation)
	}
	if err := w.Validate(); err != nil {
		return err
	}
	w.PsychologistID = psychologistID

	x.mu.Lock()
	defer x.mu.Unlock()
	x.windows[psychologistID] = sortWindows(append(x.windows[psychologistID], w))
	return nil
}

// Replace swaps the full window list of psychologistID. An empty list
// removes the psychologist from the index.
func (x *AvailabilityIndex) Replace(psychologistID string, ws []WorkingWindow) error {
	if strings.TrimSpace(psychologistID) == "" {
		return fmt.Errorf("%w: psychologist id is required", ErrValidation)
	}
	cp := make([]WorkingWindow, 0, len(ws))
	for i, w := range ws {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("window[%d]: %w", i, err)
		}
		w.PsychologistID = psychologistID
		cp = append(cp, w)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if len(cp) == 0 {
		delete(x.windows, psychologistID)
		return nil
	}
	x.windows[psychologistID] = sortWindows(cp)
	return nil
}

// WindowsFor returns the windows of psychologistID on day, ordered by start.
// An empty result means the psychologist does not work that day.
func (x *AvailabilityIndex) WindowsFor(psychologistID string, day time.Weekday) []WorkingWindow {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []WorkingWindow
	for _, w := range x.windows[psychologistID] {
		if w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	return out
}

// All returns every window of psychologistID.
func (x *AvailabilityIndex) All(psychologistID string) []WorkingWindow {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]WorkingWindow, len(x.windows[psychologistID]))
	copy(out, x.windows[psychologistID])
	return out
}

// HasAny reports whether psychologistID has at least one window.
func (x *AvailabilityIndex) HasAny(psychologistID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.windows[psychologistID]) > 0
}

// Psychologists lists the indexed psychologist ids in sorted order.
func (x *AvailabilityIndex) Psychologists() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, 0, len(x.windows))
	for id := range x.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sortWindows orders by day then start; ties keep insertion order.
func sortWindows(ws []WorkingWindow) []WorkingWindow {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].DayOfWeek != ws[j].DayOfWeek {
			return ws[i].DayOfWeek < ws[j].DayOfWeek
		}
		return ws[i].timeRange().Start < ws[j].timeRange().Start
	})
	return ws
}
