package scheduling

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/console/internal/platform/notification"
)

// Store is the in-memory appointment collection. All mutations are
// serialized by a single writer lock; each returns the affected
// appointment(s) and the notification events describing the change.
type Store struct {
	mu    sync.RWMutex
	appts map[string]Appointment
	rooms map[string]Room
	now   func() time.Time
	loc   *time.Location
	newID func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock overrides the time source used for timestamps and for the
// not-in-the-past check of Book.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreLocation sets the clinic time zone.
func WithStoreLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithIDGenerator overrides uuid generation, mostly for tests.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		appts: make(map[string]Appointment),
		rooms: make(map[string]Room),
		now:   time.Now,
		loc:   time.Local,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Filter narrows List. Zero-valued fields are ignored.
type Filter struct {
	PsychologistID string
	PatientID      string
	Date           Date
	Status         Status
}

func (f Filter) match(a *Appointment) bool {
	if f.PsychologistID != "" && a.PsychologistID != f.PsychologistID {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if !f.Date.IsZero() && !a.Date.Equal(f.Date) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Loading and queries
// ---------------------------------------------------------------------------

// Load replaces the store contents with a snapshot read from persistence.
func (s *Store) Load(appts []Appointment, rooms []Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts = make(map[string]Appointment, len(appts))
	for _, a := range appts {
		s.appts[a.ID] = a
	}
	s.rooms = make(map[string]Room, len(rooms))
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
}

// Snapshot returns every appointment in agenda order.
func (s *Store) Snapshot() []Appointment {
	return s.List(Filter{})
}

// Get returns the appointment with id.
func (s *Store) Get(id string) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	return a, nil
}

// List returns the appointments matching f ordered by date, start time and id.
func (s *Store) List(f Filter) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		if f.match(&a) {
			out = append(out, a)
		}
	}
	sortAgenda(out)
	return out
}

// ForPsychologistOn returns all appointments of psychologistID on d,
// cancelled ones included.
func (s *Store) ForPsychologistOn(psychologistID string, d Date) []Appointment {
	return s.List(Filter{PsychologistID: psychologistID, Date: d})
}

// FindOverlapping returns the non-cancelled appointments of psychologistID on
// date whose range collides with [start, end).
func (s *Store) FindOverlapping(psychologistID string, date Date, start, end string) ([]Appointment, error) {
	r, err := ParseTimeRange(start, end)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlapping(func(a *Appointment) bool { return a.PsychologistID == psychologistID }, date, r, ""), nil
}

// overlapping must be called with the lock held.
func (s *Store) overlapping(owner func(*Appointment) bool, date Date, r TimeRange, excludeID string) []Appointment {
	var out []Appointment
	for _, a := range s.appts {
		if a.ID == excludeID || a.Status == StatusCancelled || !a.Date.Equal(date) || !owner(&a) {
			continue
		}
		existing, err := a.Range()
		if err != nil {
			continue
		}
		if IsOverlapping(existing, r) {
			out = append(out, a)
		}
	}
	sortAgenda(out)
	return out
}

// checkConflicts rejects a booking that collides with the psychologist's
// agenda or, when a room is set, with the room's.
func (s *Store) checkConflicts(a *Appointment, excludeID string) error {
	r, err := a.Range()
	if err != nil {
		return err
	}
	hits := s.overlapping(func(o *Appointment) bool { return o.PsychologistID == a.PsychologistID }, a.Date, r, excludeID)
	if len(hits) > 0 {
		return fmt.Errorf("%w: psychologist %s already has %s %s-%s",
			ErrConflict, a.PsychologistID, hits[0].Date, hits[0].StartTime, hits[0].EndTime)
	}
	if room := strVal(a.RoomID); room != "" {
		hits = s.overlapping(func(o *Appointment) bool { return strVal(o.RoomID) == room }, a.Date, r, excludeID)
		if len(hits) > 0 {
			return fmt.Errorf("%w: room %s is taken %s-%s", ErrConflict, room, hits[0].StartTime, hits[0].EndTime)
		}
	}
	return nil
}

func (s *Store) checkRoom(a *Appointment) error {
	room := strVal(a.RoomID)
	if room == "" || len(s.rooms) == 0 {
		return nil
	}
	if _, ok := s.rooms[room]; !ok {
		return fmt.Errorf("%w: unknown room %s", ErrValidation, room)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// Add stores a new appointment under a fresh id. Status defaults to pending.
// No conflict check is made; use Book for that.
func (s *Store) Add(a Appointment) (Appointment, []notification.Event, error) {
	if err := a.Validate(); err != nil {
		return Appointment{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRoom(&a); err != nil {
		return Appointment{}, nil, err
	}
	a = s.insert(a)
	return a, []notification.Event{
		notification.New(notification.SeveritySuccess, "Appointment created", describe(&a)).For("appointment", a.ID),
	}, nil
}

// Book validates a, rejects it when it starts in the past or collides with
// the psychologist's or room's agenda, then stores it. The check and the
// insert happen under one lock so two concurrent bookings of the same slot
// cannot both succeed.
func (s *Store) Book(a Appointment) (Appointment, []notification.Event, error) {
	if err := a.Validate(); err != nil {
		return Appointment{}, nil, err
	}
	start, err := a.StartsAt(s.loc)
	if err != nil {
		return Appointment{}, nil, err
	}
	if !start.After(s.now()) {
		return Appointment{}, nil, fmt.Errorf("%w: %s %s is in the past", ErrValidation, a.Date, a.StartTime)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRoom(&a); err != nil {
		return Appointment{}, nil, err
	}
	if a.Status != StatusCancelled {
		if err := s.checkConflicts(&a, ""); err != nil {
			return Appointment{}, nil, err
		}
	}
	a = s.insert(a)
	return a, []notification.Event{
		notification.New(notification.SeveritySuccess, "Appointment booked", describe(&a)).For("appointment", a.ID),
	}, nil
}

// insert must be called with the write lock held.
func (s *Store) insert(a Appointment) Appointment {
	now := s.now().UTC()
	a.ID = s.newID()
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	s.appts[a.ID] = a
	return a
}

// Update replaces the stored appointment with a's fields. Unknown ids fail
// with ErrNotFound. When a.Version is non-zero it must match the stored
// version. A status change must follow the transition table and a moved
// active appointment must not collide with other bookings. An empty status
// keeps the stored one. Completed and cancelled appointments cannot be moved
// or reassigned.
func (s *Store) Update(a Appointment) (Appointment, []notification.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.appts[a.ID]
	if !ok {
		return Appointment{}, nil, fmt.Errorf("%w: appointment %s", ErrNotFound, a.ID)
	}
	if a.Status == "" {
		a.Status = cur.Status
	}
	if err := a.Validate(); err != nil {
		return Appointment{}, nil, err
	}
	if a.Version != 0 && a.Version != cur.Version {
		return Appointment{}, nil, fmt.Errorf("%w: have version %d, got %d", ErrVersionConflict, cur.Version, a.Version)
	}
	if cur.Status.IsTerminal() && moved(&cur, &a) {
		return Appointment{}, nil, fmt.Errorf("%w: %s appointment cannot be moved", ErrInvalidTransition, cur.Status)
	}
	if a.Status != cur.Status && !CanTransition(cur.Status, a.Status) {
		return Appointment{}, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, a.Status)
	}
	if err := s.checkRoom(&a); err != nil {
		return Appointment{}, nil, err
	}
	if a.Status.IsActive() && movedOrReassigned(&cur, &a) {
		if err := s.checkConflicts(&a, a.ID); err != nil {
			return Appointment{}, nil, err
		}
	}

	a.CreatedAt = cur.CreatedAt
	a.Version = cur.Version + 1
	a.UpdatedAt = s.now().UTC()
	s.appts[a.ID] = a
	return a, []notification.Event{
		notification.New(notification.SeverityInfo, "Appointment updated", describe(&a)).For("appointment", a.ID),
	}, nil
}

func moved(cur, next *Appointment) bool {
	return !cur.Date.Equal(next.Date) ||
		cur.StartTime != next.StartTime ||
		cur.EndTime != next.EndTime ||
		cur.PsychologistID != next.PsychologistID ||
		strVal(cur.RoomID) != strVal(next.RoomID)
}

func movedOrReassigned(cur, next *Appointment) bool {
	return moved(cur, next) || !cur.Status.IsActive()
}

// Remove physically deletes an appointment.
func (s *Store) Remove(id string) (Appointment, []notification.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	delete(s.appts, id)
	return a, []notification.Event{
		notification.New(notification.SeverityInfo, "Appointment removed", describe(&a)).For("appointment", a.ID),
	}, nil
}

// SetStatus moves an appointment along the transition table.
func (s *Store) SetStatus(id string, status Status) (Appointment, []notification.Event, error) {
	next, err := ParseStatus(string(status))
	if err != nil {
		return Appointment{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	if !CanTransition(a.Status, next) {
		return Appointment{}, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	s.touch(&a)
	return a, []notification.Event{statusEvent(&a)}, nil
}

// Reschedule moves an active appointment to a new date and time and resets
// it to pending. Terminal appointments cannot be rescheduled.
func (s *Store) Reschedule(id string, date Date, start, end string) (Appointment, []notification.Event, error) {
	if date.IsZero() {
		return Appointment{}, nil, fmt.Errorf("%w: date is required", ErrValidation)
	}
	if _, err := ParseTimeRange(start, end); err != nil {
		return Appointment{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	if a.Status.IsTerminal() {
		return Appointment{}, nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, a.Status)
	}
	from := describe(&a)
	a.Date, a.StartTime, a.EndTime = date, start, end
	if err := s.checkConflicts(&a, a.ID); err != nil {
		return Appointment{}, nil, err
	}
	a.Status = StatusPending
	s.touch(&a)
	return a, []notification.Event{
		notification.New(notification.SeverityInfo, "Appointment rescheduled",
			fmt.Sprintf("%s moved to %s", from, describe(&a))).For("appointment", a.ID),
	}, nil
}

// CancelForPatient cancels every pending or confirmed appointment of
// patientID dated on or after from. Only the calendar date is compared, so a
// same-day appointment whose time already passed is cancelled too.
func (s *Store) CancelForPatient(patientID string, from Date) []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []Appointment
	for id, a := range s.appts {
		if a.PatientID != patientID || a.Date.Before(from) || !CanTransition(a.Status, StatusCancelled) {
			continue
		}
		a.Status = StatusCancelled
		s.touch(&a)
		s.appts[id] = a
		cancelled = append(cancelled, a)
	}
	sortAgenda(cancelled)
	return cancelled
}

// ExpandRecurrence creates up to count follow-up occurrences of a recurring
// appointment at its recurrence stride. Occurrences that would collide with
// existing bookings are skipped and reported in a warning event.
func (s *Store) ExpandRecurrence(id string, count int) ([]Appointment, []notification.Event, error) {
	if count <= 0 {
		return nil, nil, fmt.Errorf("%w: occurrence count must be positive", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.appts[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	if !base.IsRecurring || base.RecurrenceType == nil {
		return nil, nil, fmt.Errorf("%w: appointment %s is not recurring", ErrValidation, id)
	}

	var (
		created []Appointment
		skipped []string
	)
	for i := 1; i <= count; i++ {
		date, ok := base.RecurrenceType.Occurrence(base.Date, i)
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown recurrence_type %q", ErrValidation, *base.RecurrenceType)
		}

		occ := base
		occ.Date = date
		occ.Status = StatusPending
		if err := s.checkConflicts(&occ, ""); err != nil {
			skipped = append(skipped, date.String())
			continue
		}
		created = append(created, s.insert(occ))
	}

	var events []notification.Event
	if len(created) > 0 {
		events = append(events, notification.New(notification.SeveritySuccess, "Recurring appointments created",
			fmt.Sprintf("%d %s occurrence(s) scheduled", len(created), *base.RecurrenceType)).For("appointment", base.ID))
	}
	if len(skipped) > 0 {
		events = append(events, notification.New(notification.SeverityWarning, "Recurring occurrences skipped",
			"conflicts on "+strings.Join(skipped, ", ")).For("appointment", base.ID))
	}
	return created, events, nil
}

// restore puts back a previously read appointment after a failed write-through.
func (s *Store) restore(a Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = a
}

// discard drops an appointment inserted by a write that could not be persisted.
func (s *Store) discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.appts, id)
}

// touch must be called with the write lock held.
func (s *Store) touch(a *Appointment) {
	a.Version++
	a.UpdatedAt = s.now().UTC()
	s.appts[a.ID] = *a
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// PutRoom creates or renames a room.
func (s *Store) PutRoom(r Room) (Room, error) {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	if r.ID == "" || r.Name == "" {
		return Room{}, fmt.Errorf("%w: room id and name are required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	return r, nil
}

// Rooms lists rooms ordered by name.
func (s *Store) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func sortAgenda(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

func describe(a *Appointment) string {
	return fmt.Sprintf("%s %s-%s", a.Date, a.StartTime, a.EndTime)
}

func statusEvent(a *Appointment) notification.Event {
	sev := notification.SeverityInfo
	title := "Appointment updated"
	switch a.Status {
	case StatusConfirmed:
		sev, title = notification.SeveritySuccess, "Appointment confirmed"
	case StatusCompleted:
		sev, title = notification.SeveritySuccess, "Appointment completed"
	case StatusCancelled:
		sev, title = notification.SeverityWarning, "Appointment cancelled"
	}
	return notification.New(sev, title, describe(a)).For("appointment", a.ID)
}
