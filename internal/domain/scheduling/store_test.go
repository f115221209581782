package scheduling

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinicops/console/internal/platform/notification"
)

func newTestStore() *Store {
	var n int64
	return NewStore(
		WithStoreClock(fixedClock(8, 0)),
		WithStoreLocation(time.UTC),
		WithIDGenerator(func() string {
			return fmt.Sprintf("appt-%d", atomic.AddInt64(&n, 1))
		}),
	)
}

func draft(psych string, d Date, start, end string) Appointment {
	return Appointment{
		PatientID:      "pat-1",
		PsychologistID: psych,
		Date:           d,
		StartTime:      start,
		EndTime:        end,
		Value:          15000,
	}
}

func mustBook(t *testing.T, s *Store, a Appointment) Appointment {
	t.Helper()
	got, _, err := s.Book(a)
	if err != nil {
		t.Fatalf("Book(%s %s-%s): %v", a.Date, a.StartTime, a.EndTime, err)
	}
	return got
}

// ---------------------------------------------------------------------------
// Add / Book
// ---------------------------------------------------------------------------

func TestStore_AddDefaults(t *testing.T) {
	s := newTestStore()
	a, events, err := s.Add(draft("psy-1", monday, "09:00", "10:00"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID != "appt-1" {
		t.Errorf("ID = %q", a.ID)
	}
	if a.Status != StatusPending {
		t.Errorf("status = %q, want pending", a.Status)
	}
	if a.AppointmentType != TypePresential {
		t.Errorf("type = %q, want presential", a.AppointmentType)
	}
	if a.Version != 1 || a.CreatedAt.IsZero() {
		t.Errorf("version = %d, created_at = %v", a.Version, a.CreatedAt)
	}
	if len(events) != 1 || events[0].Severity != notification.SeveritySuccess {
		t.Errorf("events = %+v", events)
	}
}

func TestStore_AddScheduledAlias(t *testing.T) {
	s := newTestStore()
	d := draft("psy-1", monday, "09:00", "10:00")
	d.Status = "scheduled"
	a, _, err := s.Add(d)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Status != StatusPending {
		t.Errorf("status = %q, want pending", a.Status)
	}
}

func TestStore_AddValidation(t *testing.T) {
	s := newTestStore()
	bad := []Appointment{
		{PsychologistID: "p", Date: monday, StartTime: "09:00", EndTime: "10:00"},
		{PatientID: "x", Date: monday, StartTime: "09:00", EndTime: "10:00"},
		{PatientID: "x", PsychologistID: "p", StartTime: "09:00", EndTime: "10:00"},
		{PatientID: "x", PsychologistID: "p", Date: monday, StartTime: "10:00", EndTime: "09:00"},
		{PatientID: "x", PsychologistID: "p", Date: monday, StartTime: "09:00", EndTime: "10:00", Value: -1},
		{PatientID: "x", PsychologistID: "p", Date: monday, StartTime: "09:00", EndTime: "10:00", IsRecurring: true},
		{PatientID: "x", PsychologistID: "p", Date: monday, StartTime: "09:00", EndTime: "10:00", AppointmentType: "phone"},
	}
	for i, a := range bad {
		if _, _, err := s.Add(a); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
	if len(s.Snapshot()) != 0 {
		t.Error("invalid appointments were stored")
	}
}

func TestStore_BookBoundaryTouchAllowed(t *testing.T) {
	s := newTestStore()
	mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	mustBook(t, s, draft("psy-1", monday, "10:00", "11:00"))

	_, _, err := s.Book(draft("psy-1", monday, "09:30", "10:30"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if n := len(s.Snapshot()); n != 2 {
		t.Errorf("stored %d appointments, want 2", n)
	}
}

func TestStore_BookOtherPsychologistSameTime(t *testing.T) {
	s := newTestStore()
	mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	mustBook(t, s, draft("psy-2", monday, "09:00", "10:00"))
}

func TestStore_BookRoomConflict(t *testing.T) {
	s := newTestStore()
	room := "room-a"
	a := draft("psy-1", monday, "09:00", "10:00")
	a.RoomID = &room
	mustBook(t, s, a)

	b := draft("psy-2", monday, "09:30", "10:30")
	b.RoomID = &room
	if _, _, err := s.Book(b); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestStore_BookUnknownRoom(t *testing.T) {
	s := newTestStore()
	if _, err := s.PutRoom(Room{ID: "room-a", Name: "Sala A"}); err != nil {
		t.Fatalf("PutRoom: %v", err)
	}
	ghost := "room-z"
	a := draft("psy-1", monday, "09:00", "10:00")
	a.RoomID = &ghost
	if _, _, err := s.Book(a); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestStore_BookCancelledDoesNotBlock(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.SetStatus(a.ID, StatusCancelled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
}

func TestStore_BookRejectsPast(t *testing.T) {
	s := newTestStore()
	if _, _, err := s.Book(draft("psy-1", monday, "07:00", "08:00")); !errors.Is(err, ErrValidation) {
		t.Errorf("earlier today: err = %v, want ErrValidation", err)
	}
	if _, _, err := s.Book(draft("psy-1", monday.AddDays(-1), "09:00", "10:00")); !errors.Is(err, ErrValidation) {
		t.Errorf("yesterday: err = %v, want ErrValidation", err)
	}
}

func TestStore_BookConcurrentSameSlot(t *testing.T) {
	s := newTestStore()
	const n = 16
	var (
		wg      sync.WaitGroup
		success int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Book(draft("psy-1", monday, "09:00", "10:00")); err == nil {
				atomic.AddInt64(&success, 1)
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Errorf("%d concurrent bookings succeeded, want 1", success)
	}
}

// ---------------------------------------------------------------------------
// Update / Remove
// ---------------------------------------------------------------------------

func TestStore_UpdateUnknown(t *testing.T) {
	s := newTestStore()
	a := draft("psy-1", monday, "09:00", "10:00")
	a.ID = "missing"
	if _, _, err := s.Update(a); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdateVersionCheck(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))

	a.Notes = "first"
	updated, _, err := s.Update(a)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	if !updated.CreatedAt.Equal(a.CreatedAt) {
		t.Error("created_at changed on update")
	}

	a.Notes = "stale"
	if _, _, err := s.Update(a); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale write: err = %v, want ErrVersionConflict", err)
	}
	got, _ := s.Get(a.ID)
	if got.Notes != "first" {
		t.Errorf("notes = %q, want first", got.Notes)
	}
}

func TestStore_UpdateTransitionAndConflict(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	mustBook(t, s, draft("psy-1", monday, "10:00", "11:00"))

	shifted := a
	shifted.Version = 0
	shifted.StartTime, shifted.EndTime = "10:30", "11:30"
	if _, _, err := s.Update(shifted); !errors.Is(err, ErrConflict) {
		t.Errorf("move onto booking: err = %v, want ErrConflict", err)
	}

	done := a
	done.Version = 0
	done.Status = StatusCompleted
	if _, _, err := s.Update(done); err != nil {
		t.Fatalf("complete via Update: %v", err)
	}
	back := done
	back.Status = StatusPending
	if _, _, err := s.Update(back); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("reopen via Update: err = %v, want ErrInvalidTransition", err)
	}
}

func TestStore_UpdateTerminalCannotMove(t *testing.T) {
	for _, st := range []Status{StatusCompleted, StatusCancelled} {
		s := newTestStore()
		a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
		done, _, err := s.SetStatus(a.ID, st)
		if err != nil {
			t.Fatalf("SetStatus(%s): %v", st, err)
		}

		shifted := done
		shifted.Version = 0
		shifted.Date = monday.AddDays(3)
		shifted.StartTime, shifted.EndTime = "14:00", "15:00"
		if _, _, err := s.Update(shifted); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: move err = %v, want ErrInvalidTransition", st, err)
		}

		reassigned := done
		reassigned.Version = 0
		reassigned.PsychologistID = "psy-2"
		if _, _, err := s.Update(reassigned); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: reassign err = %v, want ErrInvalidTransition", st, err)
		}

		got, _ := s.Get(a.ID)
		if !got.Date.Equal(monday) || got.StartTime != "09:00" || got.PsychologistID != "psy-1" {
			t.Errorf("%s: appointment changed: %+v", st, got)
		}

		noted := done
		noted.Version = 0
		noted.Notes = "session summary sent"
		if _, _, err := s.Update(noted); err != nil {
			t.Errorf("%s: notes-only update: %v", st, err)
		}
	}
}

func TestStore_UpdateKeepsStatusWhenOmitted(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.SetStatus(a.ID, StatusConfirmed); err != nil {
		t.Fatal(err)
	}

	edit := a
	edit.Version = 0
	edit.Status = ""
	edit.Notes = "bring previous reports"
	got, _, err := s.Update(edit)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != StatusConfirmed || got.Notes != "bring previous reports" {
		t.Errorf("appointment = %+v", got)
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, events, err := s.Remove(a.ID); err != nil || len(events) != 1 {
		t.Fatalf("Remove: %v, events %v", err, events)
	}
	if _, err := s.Get(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove: %v", err)
	}
	if _, _, err := s.Remove(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove: err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Status lifecycle
// ---------------------------------------------------------------------------

func TestStore_SetStatusTransitions(t *testing.T) {
	tests := []struct {
		path    []Status
		wantErr bool
	}{
		{[]Status{StatusConfirmed}, false},
		{[]Status{StatusConfirmed, StatusCompleted}, false},
		{[]Status{StatusConfirmed, StatusCancelled}, false},
		{[]Status{StatusCompleted}, false},
		{[]Status{StatusCancelled}, false},
		{[]Status{StatusCompleted, StatusPending}, true},
		{[]Status{StatusCancelled, StatusConfirmed}, true},
		{[]Status{StatusConfirmed, StatusPending}, true},
		{[]Status{StatusPending}, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.path), func(t *testing.T) {
			s := newTestStore()
			a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
			var err error
			for _, st := range tt.path {
				if _, _, err = s.SetStatus(a.ID, st); err != nil {
					break
				}
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestStore_SetStatusCompletedToPendingKeepsState(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.SetStatus(a.ID, StatusCompleted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, _, err := s.SetStatus(a.ID, StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	got, _ := s.Get(a.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestStore_SetStatusErrors(t *testing.T) {
	s := newTestStore()
	if _, _, err := s.SetStatus("missing", StatusConfirmed); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.SetStatus(a.ID, "archived"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown status: err = %v", err)
	}
}

func TestStore_SetStatusEvents(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	_, events, err := s.SetStatus(a.ID, StatusCancelled)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if len(events) != 1 || events[0].Severity != notification.SeverityWarning || events[0].ResourceID != a.ID {
		t.Errorf("events = %+v", events)
	}
}

// ---------------------------------------------------------------------------
// Reschedule
// ---------------------------------------------------------------------------

func TestStore_RescheduleResetsToPending(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.SetStatus(a.ID, StatusConfirmed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	next := monday.AddDays(2)
	got, events, err := s.Reschedule(a.ID, next, "14:00", "15:00")
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if got.Status != StatusPending || !got.Date.Equal(next) || got.StartTime != "14:00" {
		t.Errorf("got %+v", got)
	}
	if len(events) != 1 {
		t.Errorf("events = %+v", events)
	}
}

func TestStore_RescheduleTerminalRejected(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.SetStatus(a.ID, StatusCancelled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, _, err := s.Reschedule(a.ID, monday.AddDays(1), "09:00", "10:00"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestStore_RescheduleConflict(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	mustBook(t, s, draft("psy-1", monday, "11:00", "12:00"))

	if _, _, err := s.Reschedule(a.ID, monday, "11:30", "12:30"); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	got, _ := s.Get(a.ID)
	if got.StartTime != "09:00" {
		t.Errorf("failed reschedule changed start to %s", got.StartTime)
	}

	// Moving within its own range is not a conflict with itself.
	if _, _, err := s.Reschedule(a.ID, monday, "09:30", "10:30"); err != nil {
		t.Errorf("self overlap: %v", err)
	}
}

func TestStore_RescheduleValidation(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.Reschedule(a.ID, monday, "12:00", "11:00"); !errors.Is(err, ErrValidation) {
		t.Errorf("inverted range: err = %v", err)
	}
	if _, _, err := s.Reschedule(a.ID, Date{}, "12:00", "13:00"); !errors.Is(err, ErrValidation) {
		t.Errorf("zero date: err = %v", err)
	}
	if _, _, err := s.Reschedule("missing", monday, "12:00", "13:00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func TestStore_FindOverlapping(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	c := mustBook(t, s, draft("psy-1", monday, "10:00", "11:00"))
	if _, _, err := s.SetStatus(c.ID, StatusCancelled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := s.FindOverlapping("psy-1", monday, "09:30", "10:30")
	if err != nil {
		t.Fatalf("FindOverlapping: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("got %+v, want only %s", got, a.ID)
	}

	got, _ = s.FindOverlapping("psy-1", monday.AddDays(1), "09:30", "10:30")
	if len(got) != 0 {
		t.Errorf("other day: got %+v", got)
	}
	if _, err := s.FindOverlapping("psy-1", monday, "x", "10:30"); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Errorf("bad input: err = %v", err)
	}
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	s := newTestStore()
	mustBook(t, s, draft("psy-1", monday.AddDays(1), "09:00", "10:00"))
	mustBook(t, s, draft("psy-1", monday, "14:00", "15:00"))
	mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	other := draft("psy-2", monday, "09:00", "10:00")
	other.PatientID = "pat-2"
	mustBook(t, s, other)

	got := s.List(Filter{PsychologistID: "psy-1"})
	if len(got) != 3 {
		t.Fatalf("got %d, want 3", len(got))
	}
	if got[0].StartTime != "09:00" || !got[0].Date.Equal(monday) || got[1].StartTime != "14:00" {
		t.Errorf("order = %s %s, %s %s", got[0].Date, got[0].StartTime, got[1].Date, got[1].StartTime)
	}
	if n := len(s.List(Filter{PatientID: "pat-2"})); n != 1 {
		t.Errorf("patient filter = %d, want 1", n)
	}
	if n := len(s.List(Filter{Date: monday, Status: StatusPending})); n != 3 {
		t.Errorf("date+status filter = %d, want 3", n)
	}
}

// ---------------------------------------------------------------------------
// Cascade and recurrence
// ---------------------------------------------------------------------------

func TestStore_CancelForPatient(t *testing.T) {
	s := newTestStore()
	past := draft("psy-1", monday.AddDays(-7), "09:00", "10:00")
	past.ID = "past"
	past.Status = StatusCompleted
	earlier := draft("psy-1", monday, "06:00", "07:00")
	earlier.ID = "earlier-today"
	earlier.Status = StatusConfirmed
	s.Load([]Appointment{past, earlier}, nil)

	f1 := mustBook(t, s, draft("psy-1", monday.AddDays(1), "09:00", "10:00"))
	f2 := mustBook(t, s, draft("psy-1", monday.AddDays(8), "09:00", "10:00"))
	done := mustBook(t, s, draft("psy-1", monday.AddDays(2), "09:00", "10:00"))
	if _, _, err := s.SetStatus(done.ID, StatusCompleted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	other := draft("psy-1", monday.AddDays(3), "09:00", "10:00")
	other.PatientID = "pat-2"
	o := mustBook(t, s, other)

	cancelled := s.CancelForPatient("pat-1", monday)
	ids := map[string]bool{}
	for _, a := range cancelled {
		ids[a.ID] = true
		if a.Status != StatusCancelled {
			t.Errorf("%s status = %s", a.ID, a.Status)
		}
	}
	if len(cancelled) != 3 || !ids[f1.ID] || !ids[f2.ID] || !ids["earlier-today"] {
		t.Errorf("cancelled = %v", ids)
	}

	for id, want := range map[string]Status{"past": StatusCompleted, done.ID: StatusCompleted, o.ID: StatusPending} {
		got, _ := s.Get(id)
		if got.Status != want {
			t.Errorf("%s status = %s, want %s", id, got.Status, want)
		}
	}
}

func TestStore_ExpandRecurrence(t *testing.T) {
	s := newTestStore()
	weekly := RecurrenceWeekly
	base := draft("psy-1", monday, "09:00", "10:00")
	base.IsRecurring = true
	base.RecurrenceType = &weekly
	a := mustBook(t, s, base)

	// Occupy the third week so that occurrence is skipped.
	mustBook(t, s, draft("psy-1", monday.AddDays(14), "09:30", "10:30"))

	created, events, err := s.ExpandRecurrence(a.ID, 3)
	if err != nil {
		t.Fatalf("ExpandRecurrence: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d, want 2", len(created))
	}
	if !created[0].Date.Equal(monday.AddDays(7)) || !created[1].Date.Equal(monday.AddDays(21)) {
		t.Errorf("dates = %s, %s", created[0].Date, created[1].Date)
	}
	if len(events) != 2 || events[1].Severity != notification.SeverityWarning {
		t.Errorf("events = %+v", events)
	}
}

func TestStore_ExpandRecurrenceMonthly(t *testing.T) {
	s := newTestStore()
	monthly := RecurrenceMonthly
	base := draft("psy-1", monday, "09:00", "10:00")
	base.IsRecurring = true
	base.RecurrenceType = &monthly
	a := mustBook(t, s, base)

	created, _, err := s.ExpandRecurrence(a.ID, 2)
	if err != nil {
		t.Fatalf("ExpandRecurrence: %v", err)
	}
	if created[0].Date.String() != "2026-11-19" || created[1].Date.String() != "2026-12-19" {
		t.Errorf("dates = %s, %s", created[0].Date, created[1].Date)
	}
}

func TestStore_ExpandRecurrenceMonthlyFromMonthEnd(t *testing.T) {
	s := newTestStore()
	monthly := RecurrenceMonthly
	base := draft("psy-1", NewDate(2027, time.January, 31), "09:00", "10:00")
	base.IsRecurring = true
	base.RecurrenceType = &monthly
	a := mustBook(t, s, base)

	created, _, err := s.ExpandRecurrence(a.ID, 4)
	if err != nil {
		t.Fatalf("ExpandRecurrence: %v", err)
	}
	want := []string{"2027-02-28", "2027-03-31", "2027-04-30", "2027-05-31"}
	if len(created) != len(want) {
		t.Fatalf("created %d, want %d", len(created), len(want))
	}
	for i, w := range want {
		if got := created[i].Date.String(); got != w {
			t.Errorf("occurrence %d = %s, want %s", i+1, got, w)
		}
	}
}

func TestDate_AddMonthsClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		from Date
		n    int
		want string
	}{
		{NewDate(2027, time.January, 31), 1, "2027-02-28"},
		{NewDate(2028, time.January, 31), 1, "2028-02-29"},
		{NewDate(2027, time.January, 31), 3, "2027-04-30"},
		{NewDate(2026, time.December, 31), 2, "2027-02-28"},
		{NewDate(2026, time.October, 19), 1, "2026-11-19"},
		{NewDate(2027, time.March, 31), -1, "2027-02-28"},
	}
	for _, tt := range tests {
		if got := tt.from.AddMonths(tt.n).String(); got != tt.want {
			t.Errorf("%s + %d months = %s, want %s", tt.from, tt.n, got, tt.want)
		}
	}
}

func TestRecurrenceType_Occurrence(t *testing.T) {
	start := NewDate(2026, time.October, 19)
	for rt, want := range map[RecurrenceType]string{
		RecurrenceWeekly:   "2026-11-09",
		RecurrenceBiweekly: "2026-11-30",
		RecurrenceMonthly:  "2027-01-19",
	} {
		got, ok := rt.Occurrence(start, 3)
		if !ok || got.String() != want {
			t.Errorf("%s third occurrence = %s (%v), want %s", rt, got, ok, want)
		}
	}
	if _, ok := RecurrenceType("daily").Occurrence(start, 1); ok {
		t.Error("unknown recurrence type accepted")
	}
}

func TestStore_ExpandRecurrenceErrors(t *testing.T) {
	s := newTestStore()
	a := mustBook(t, s, draft("psy-1", monday, "09:00", "10:00"))
	if _, _, err := s.ExpandRecurrence(a.ID, 2); !errors.Is(err, ErrValidation) {
		t.Errorf("non-recurring: err = %v", err)
	}
	if _, _, err := s.ExpandRecurrence("missing", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown: err = %v", err)
	}
	if _, _, err := s.ExpandRecurrence(a.ID, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("zero count: err = %v", err)
	}
}

func TestStore_Rooms(t *testing.T) {
	s := newTestStore()
	if _, err := s.PutRoom(Room{ID: "r2", Name: "Sala B"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutRoom(Room{ID: "r1", Name: "Sala A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutRoom(Room{ID: " ", Name: "x"}); !errors.Is(err, ErrValidation) {
		t.Errorf("blank id: err = %v", err)
	}
	rooms := s.Rooms()
	if len(rooms) != 2 || rooms[0].ID != "r1" {
		t.Errorf("rooms = %+v", rooms)
	}
}
