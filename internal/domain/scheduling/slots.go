package scheduling

import "fmt"

// SlotStride is the distance in minutes between consecutive candidate starts.
const SlotStride = 30

// DefaultSlotDuration is the appointment length used by the next-slot search.
const DefaultSlotDuration = 60

// GenerateSlots enumerates candidate ranges of durationMinutes inside the
// window [start, end), stepping the start by SlotStride. Each call returns a
// fresh slice in chronological order.
func GenerateSlots(start, end string, durationMinutes int) ([]TimeRange, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive, got %d", ErrValidation, durationMinutes)
	}
	s, err := TimeToMinutes(start)
	if err != nil {
		return nil, err
	}
	e, err := TimeToMinutes(end)
	if err != nil {
		return nil, err
	}
	return generateSlots(TimeRange{Start: s, End: e}, durationMinutes), nil
}

func generateSlots(window TimeRange, duration int) []TimeRange {
	var out []TimeRange
	for cursor := window.Start; cursor+duration <= window.End; cursor += SlotStride {
		out = append(out, TimeRange{Start: cursor, End: cursor + duration})
	}
	return out
}
