package scheduling

// IsOverlapping reports whether candidate collides with existing. The three
// clauses are kept separate so that touching boundaries (10:00-11:00 after
// 09:00-10:00) are never reported as conflicts:
//   - the candidate starts inside [existing.Start, existing.End)
//   - the candidate ends inside (existing.Start, existing.End]
//   - the candidate covers the whole existing range
func IsOverlapping(existing, candidate TimeRange) bool {
	startsInside := candidate.Start >= existing.Start && candidate.Start < existing.End
	endsInside := candidate.End > existing.Start && candidate.End <= existing.End
	contains := candidate.Start <= existing.Start && candidate.End >= existing.End
	return startsInside || endsInside || contains
}

// Overlaps is IsOverlapping over "HH:MM" strings.
func Overlaps(existingStart, existingEnd, candidateStart, candidateEnd string) (bool, error) {
	existing, err := ParseTimeRange(existingStart, existingEnd)
	if err != nil {
		return false, err
	}
	candidate, err := ParseTimeRange(candidateStart, candidateEnd)
	if err != nil {
		return false, err
	}
	return IsOverlapping(existing, candidate), nil
}
