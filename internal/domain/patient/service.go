package patient

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinicops/console/internal/domain/scheduling"
	"github.com/clinicops/console/internal/platform/notification"
)

// Agenda is the part of the scheduling service the lifecycle cascades into.
type Agenda interface {
	Today() scheduling.Date
	CancelForPatient(ctx context.Context, patientID string, from scheduling.Date) ([]scheduling.Appointment, error)
	PatientAgenda(patientID string) []scheduling.Appointment
	RestoreAppointments(appts []scheduling.Appointment)
}

// Publisher receives the events produced by patient operations.
type Publisher interface {
	Publish(events ...notification.Event)
}

// TxRunner runs fn inside one database transaction carried by ctx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Service is the I/O boundary of the patient directory.
type Service struct {
	registry *Registry
	agenda   Agenda
	repo     Repository
	events   Publisher
	inTx     TxRunner
	logger   zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRepository enables write-through persistence.
func WithRepository(r Repository) ServiceOption {
	return func(s *Service) { s.repo = r }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// WithTxRunner makes deactivation and its cascade commit atomically.
func WithTxRunner(fn TxRunner) ServiceOption {
	return func(s *Service) { s.inTx = fn }
}

// NewService creates a patient service cascading into agenda.
func NewService(registry *Registry, agenda Agenda, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		registry: registry,
		agenda:   agenda,
		logger:   logger.With().Str("component", "patient").Logger(),
		inTx: func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap loads the directory from the repository.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	patients, err := s.repo.ListPatients(ctx)
	if err != nil {
		return err
	}
	s.registry.Load(patients)
	s.logger.Info().Int("patients", len(patients)).Msg("patient directory loaded")
	return nil
}

func (s *Service) Get(id string) (Patient, error) { return s.registry.Get(id) }

func (s *Service) List(f Filter) []Patient { return s.registry.List(f) }

// Create registers a patient.
func (s *Service) Create(ctx context.Context, p Patient) (Patient, error) {
	created, err := s.registry.Create(p)
	if err != nil {
		return Patient{}, err
	}
	if err := s.save(ctx, created); err != nil {
		s.registry.discard(created)
		return Patient{}, err
	}
	s.publish(notification.New(notification.SeveritySuccess, "Patient registered", created.Name).For("patient", created.ID))
	return created, nil
}

// UpdateContact edits a patient's name, phone and email.
func (s *Service) UpdateContact(ctx context.Context, id, name, phone, email string) (Patient, error) {
	prev, err := s.registry.Get(id)
	if err != nil {
		return Patient{}, err
	}
	updated, err := s.registry.UpdateContact(id, name, phone, email)
	if err != nil {
		return Patient{}, err
	}
	if err := s.save(ctx, updated); err != nil {
		s.registry.restore(prev)
		return Patient{}, err
	}
	return updated, nil
}

func (s *Service) save(ctx context.Context, p Patient) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SavePatient(ctx, p); err != nil {
		s.logger.Error().Err(err).Str("patient_id", p.ID).Msg("persist patient")
		return err
	}
	return nil
}

func (s *Service) publish(events ...notification.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(events...)
}
