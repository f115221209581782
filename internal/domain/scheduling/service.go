package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/console/internal/platform/notification"
)

// Locker serializes bookings across processes. Acquire blocks until the lock
// is held or ctx ends and returns the function that releases it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Publisher receives the events produced by successful mutations.
type Publisher interface {
	Publish(events ...notification.Event)
}

const bookingLockTTL = 10 * time.Second

// Service is the I/O boundary around the in-memory engine: it takes the
// booking lock, runs the pure mutation, persists the result and publishes
// the events. Without a repository it runs purely in memory.
type Service struct {
	store  *Store
	index  *AvailabilityIndex
	finder *SlotFinder
	repo   Repository
	locker Locker
	events Publisher
	logger zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRepository enables write-through persistence.
func WithRepository(r Repository) ServiceOption {
	return func(s *Service) { s.repo = r }
}

// WithLocker sets the cross-process booking lock.
func WithLocker(l Locker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// NewService wires the engine components.
func NewService(store *Store, index *AvailabilityIndex, finder *SlotFinder, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		index:  index,
		finder: finder,
		logger: logger.With().Str("component", "scheduling").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap loads appointments, rooms and working windows from the
// repository into memory.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return err
	}
	rooms, err := s.repo.ListRooms(ctx)
	if err != nil {
		return err
	}
	windows, err := s.repo.ListWorkingWindows(ctx)
	if err != nil {
		return err
	}

	byPsych := make(map[string][]WorkingWindow)
	for _, w := range windows {
		byPsych[w.PsychologistID] = append(byPsych[w.PsychologistID], w)
	}
	for id, ws := range byPsych {
		if err := s.index.Replace(id, ws); err != nil {
			return fmt.Errorf("load working windows of %s: %w", id, err)
		}
	}
	s.store.Load(appts, rooms)

	s.logger.Info().
		Int("appointments", len(appts)).
		Int("rooms", len(rooms)).
		Int("psychologists", len(byPsych)).
		Msg("scheduling snapshot loaded")
	return nil
}

// Today returns the clinic's current calendar date.
func (s *Service) Today() Date { return s.finder.Today() }

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (s *Service) GetAppointment(id string) (Appointment, error) { return s.store.Get(id) }

func (s *Service) ListAppointments(f Filter) []Appointment { return s.store.List(f) }

func (s *Service) FindOverlapping(psychologistID string, date Date, start, end string) ([]Appointment, error) {
	return s.store.FindOverlapping(psychologistID, date, start, end)
}

// NextSlot returns the first bookable slot of psychologistID.
func (s *Service) NextSlot(psychologistID string) (Slot, bool) {
	return s.finder.FindNextAvailableSlot(psychologistID)
}

// Slots lists free slots in [from, from+days). A zero from means today.
func (s *Service) Slots(psychologistID string, from Date, days int) []Slot {
	if from.IsZero() {
		from = s.finder.Today()
	}
	return s.finder.FindAvailableSlots(psychologistID, from, days)
}

func (s *Service) WorkingHours(psychologistID string) []WorkingWindow { return s.index.All(psychologistID) }

func (s *Service) Rooms() []Room { return s.store.Rooms() }

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// Book stores a conflict-free appointment. For recurring bookings, follow-up
// occurrences are created when occurrences > 0.
func (s *Service) Book(ctx context.Context, a Appointment, occurrences int) (Appointment, []Appointment, error) {
	unlock, err := s.lock(ctx, a.PsychologistID)
	if err != nil {
		return Appointment{}, nil, err
	}
	defer unlock()

	booked, events, err := s.store.Book(a)
	if err != nil {
		return Appointment{}, nil, err
	}
	var series []Appointment
	if booked.IsRecurring && occurrences > 0 {
		created, more, err := s.store.ExpandRecurrence(booked.ID, occurrences)
		if err != nil {
			s.store.discard(booked.ID)
			return Appointment{}, nil, err
		}
		series, events = created, append(events, more...)
	}

	all := append([]Appointment{booked}, series...)
	if err := s.save(ctx, all...); err != nil {
		for _, x := range all {
			s.store.discard(x.ID)
		}
		return Appointment{}, nil, err
	}
	s.publish(events)
	return booked, series, nil
}

// ExpandRecurrence adds follow-up occurrences to an existing recurring
// appointment.
func (s *Service) ExpandRecurrence(ctx context.Context, id string, count int) ([]Appointment, error) {
	base, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, base.PsychologistID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	created, events, err := s.store.ExpandRecurrence(id, count)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, created...); err != nil {
		for _, x := range created {
			s.store.discard(x.ID)
		}
		return nil, err
	}
	s.publish(events)
	return created, nil
}

// Update replaces an appointment.
func (s *Service) Update(ctx context.Context, a Appointment) (Appointment, error) {
	prev, err := s.store.Get(a.ID)
	if err != nil {
		return Appointment{}, err
	}
	return s.mutate(ctx, prev, func() (Appointment, []notification.Event, error) {
		return s.store.Update(a)
	}, a.PsychologistID)
}

// SetStatus moves an appointment to status.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	prev, err := s.store.Get(id)
	if err != nil {
		return Appointment{}, err
	}
	return s.mutate(ctx, prev, func() (Appointment, []notification.Event, error) {
		return s.store.SetStatus(id, status)
	})
}

// Reschedule moves an appointment and resets it to pending.
func (s *Service) Reschedule(ctx context.Context, id string, date Date, start, end string) (Appointment, error) {
	prev, err := s.store.Get(id)
	if err != nil {
		return Appointment{}, err
	}
	return s.mutate(ctx, prev, func() (Appointment, []notification.Event, error) {
		return s.store.Reschedule(id, date, start, end)
	})
}

// Remove deletes an appointment.
func (s *Service) Remove(ctx context.Context, id string) error {
	removed, events, err := s.store.Remove(id)
	if err != nil {
		return err
	}
	if s.repo != nil {
		if err := s.repo.DeleteAppointment(ctx, id); err != nil {
			s.store.restore(removed)
			return err
		}
	}
	s.publish(events)
	return nil
}

// CancelForPatient cascades a patient's deactivation to the agenda. The
// returned appointments have already been persisted; events are left to the
// caller, which reports one aggregate notification.
func (s *Service) CancelForPatient(ctx context.Context, patientID string, from Date) ([]Appointment, error) {
	before := s.store.List(Filter{PatientID: patientID})
	cancelled := s.store.CancelForPatient(patientID, from)
	if err := s.save(ctx, cancelled...); err != nil {
		for _, a := range before {
			s.store.restore(a)
		}
		return nil, err
	}
	if len(cancelled) > 0 {
		s.logger.Info().Str("patient_id", patientID).Int("cancelled", len(cancelled)).Msg("cascading cancellation")
	}
	return cancelled, nil
}

// PatientAgenda returns every appointment of patientID.
func (s *Service) PatientAgenda(patientID string) []Appointment {
	return s.store.List(Filter{PatientID: patientID})
}

// RestoreAppointments puts back appointments read before a cascade whose
// enclosing transaction did not commit.
func (s *Service) RestoreAppointments(appts []Appointment) {
	for _, a := range appts {
		s.store.restore(a)
	}
}

// SetWorkingHours replaces the weekly windows of psychologistID.
func (s *Service) SetWorkingHours(ctx context.Context, psychologistID string, windows []WorkingWindow) ([]WorkingWindow, error) {
	prev := s.index.All(psychologistID)
	if err := s.index.Replace(psychologistID, windows); err != nil {
		return nil, err
	}
	if s.repo != nil {
		if err := s.repo.ReplaceWorkingWindows(ctx, psychologistID, windows); err != nil {
			if rerr := s.index.Replace(psychologistID, prev); rerr != nil {
				s.logger.Error().Err(rerr).Str("psychologist_id", psychologistID).Msg("restore working hours")
			}
			return nil, err
		}
	}
	s.publish([]notification.Event{
		notification.New(notification.SeverityInfo, "Working hours updated",
			fmt.Sprintf("%d window(s) configured", len(windows))).For("psychologist", psychologistID),
	})
	return s.index.All(psychologistID), nil
}

// PutRoom creates or renames a room.
func (s *Service) PutRoom(ctx context.Context, r Room) (Room, error) {
	saved, err := s.store.PutRoom(r)
	if err != nil {
		return Room{}, err
	}
	if s.repo != nil {
		if err := s.repo.SaveRoom(ctx, saved); err != nil {
			return Room{}, err
		}
	}
	return saved, nil
}

// mutate runs fn under the psychologist lock(s), persists the result and
// rolls the store back to prev if persistence fails.
func (s *Service) mutate(ctx context.Context, prev Appointment, fn func() (Appointment, []notification.Event, error), extraLocks ...string) (Appointment, error) {
	keys := append([]string{prev.PsychologistID}, extraLocks...)
	var unlocks []func()
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()
	seen := map[string]bool{}
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		unlock, err := s.lock(ctx, k)
		if err != nil {
			return Appointment{}, err
		}
		unlocks = append(unlocks, unlock)
	}

	next, events, err := fn()
	if err != nil {
		return Appointment{}, err
	}
	if err := s.save(ctx, next); err != nil {
		s.store.restore(prev)
		return Appointment{}, err
	}
	s.publish(events)
	return next, nil
}

func (s *Service) save(ctx context.Context, appts ...Appointment) error {
	if s.repo == nil || len(appts) == 0 {
		return nil
	}
	if err := s.repo.SaveAppointments(ctx, appts...); err != nil {
		s.logger.Error().Err(err).Int("count", len(appts)).Msg("persist appointments")
		return err
	}
	return nil
}

func (s *Service) lock(ctx context.Context, psychologistID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, "booking:psychologist:"+psychologistID, bookingLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			s.logger.Warn().Err(err).Str("psychologist_id", psychologistID).Msg("release booking lock")
		}
	}, nil
}

func (s *Service) publish(events []notification.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(events...)
}
