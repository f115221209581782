package scheduling

import "time"

// DefaultSearchDays is how many calendar days the next-slot search scans,
// today included.
const DefaultSearchDays = 60

// AppointmentLookup returns the appointments a psychologist has on a date.
type AppointmentLookup interface {
	ForPsychologistOn(psychologistID string, d Date) []Appointment
}

// Slot is a bookable candidate returned by the finder.
type Slot struct {
	PsychologistID string `json:"psychologist_id"`
	Date           Date   `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

// SlotFinder locates free slots from working windows and existing bookings.
// It only reads; the returned slot is not reserved.
type SlotFinder struct {
	index    *AvailabilityIndex
	appts    AppointmentLookup
	now      func() time.Time
	loc      *time.Location
	horizon  int
	duration int
}

// FinderOption configures a SlotFinder.
type FinderOption func(*SlotFinder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) FinderOption {
	return func(f *SlotFinder) { f.now = now }
}

// WithLocation sets the clinic's time zone used to interpret wall-clock times.
func WithLocation(loc *time.Location) FinderOption {
	return func(f *SlotFinder) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithSearchDays sets the number of days scanned by FindNextAvailableSlot.
func WithSearchDays(days int) FinderOption {
	return func(f *SlotFinder) {
		if days > 0 {
			f.horizon = days
		}
	}
}

// WithSlotDuration sets the candidate slot length in minutes.
func WithSlotDuration(minutes int) FinderOption {
	return func(f *SlotFinder) {
		if minutes > 0 {
			f.duration = minutes
		}
	}
}

// NewSlotFinder creates a finder over index and appts.
func NewSlotFinder(index *AvailabilityIndex, appts AppointmentLookup, opts ...FinderOption) *SlotFinder {
	f := &SlotFinder{
		index:    index,
		appts:    appts,
		now:      time.Now,
		loc:      time.Local,
		horizon:  DefaultSearchDays,
		duration: DefaultSlotDuration,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Today returns the current calendar date in the finder's location.
func (f *SlotFinder) Today() Date {
	return DateOf(f.now().In(f.loc))
}

// FindNextAvailableSlot scans forward from today, day by day, and returns the
// first free slot that starts after now. found is false when the
// psychologist has no working windows or the search horizon is exhausted.
func (f *SlotFinder) FindNextAvailableSlot(psychologistID string) (slot Slot, found bool) {
	if !f.index.HasAny(psychologistID) {
		return Slot{}, false
	}
	now := f.now().In(f.loc)
	today := DateOf(now)

	for offset := 0; offset < f.horizon; offset++ {
		day := today.AddDays(offset)
		f.scanDay(psychologistID, day, now, func(s Slot) bool {
			slot, found = s, true
			return false
		})
		if found {
			return slot, true
		}
	}
	return Slot{}, false
}

// FindAvailableSlots lists every free future slot of psychologistID in the
// days [from, from+days).
func (f *SlotFinder) FindAvailableSlots(psychologistID string, from Date, days int) []Slot {
	var out []Slot
	if !f.index.HasAny(psychologistID) || days <= 0 {
		return out
	}
	now := f.now().In(f.loc)
	for offset := 0; offset < days; offset++ {
		f.scanDay(psychologistID, from.AddDays(offset), now, func(s Slot) bool {
			out = append(out, s)
			return true
		})
	}
	return out
}

// scanDay walks the free slots of one day in window then generation order,
// calling yield until it returns false.
func (f *SlotFinder) scanDay(psychologistID string, day Date, now time.Time, yield func(Slot) bool) {
	windows := f.index.WindowsFor(psychologistID, day.Weekday())
	if len(windows) == 0 {
		return
	}
	booked := busyRanges(f.appts.ForPsychologistOn(psychologistID, day))

	for _, w := range windows {
		for _, cand := range generateSlots(w.timeRange(), f.duration) {
			if overlapsAny(booked, cand) {
				continue
			}
			if !day.At(cand.Start, f.loc).After(now) {
				continue
			}
			s := Slot{
				PsychologistID: psychologistID,
				Date:           day,
				StartTime:      cand.StartClock(),
				EndTime:        cand.EndClock(),
			}
			if !yield(s) {
				return
			}
		}
	}
}

// busyRanges keeps the ranges that still occupy the agenda. Cancelled
// appointments free their slot; unparsable rows are skipped.
func busyRanges(appts []Appointment) []TimeRange {
	out := make([]TimeRange, 0, len(appts))
	for i := range appts {
		if appts[i].Status == StatusCancelled {
			continue
		}
		r, err := appts[i].Range()
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func overlapsAny(existing []TimeRange, cand TimeRange) bool {
	for _, e := range existing {
		if IsOverlapping(e, cand) {
			return true
		}
	}
	return false
}
