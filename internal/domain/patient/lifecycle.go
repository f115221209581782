package patient

import (
	"context"
	"fmt"

	"github.com/clinicops/console/internal/domain/scheduling"
	"github.com/clinicops/console/internal/platform/notification"
)

// Deactivate marks the patient inactive with reason and cancels every
// pending or confirmed appointment dated today or later. Only dates are
// compared, so an appointment earlier today is cancelled as well. The
// cancelled appointments are returned.
func (s *Service) Deactivate(ctx context.Context, id, reason string) (Patient, []scheduling.Appointment, error) {
	prev, err := s.registry.Get(id)
	if err != nil {
		return Patient{}, nil, err
	}
	today := s.agenda.Today()
	p, err := s.registry.Deactivate(id, reason, today)
	if err != nil {
		return Patient{}, nil, err
	}

	before := s.agenda.PatientAgenda(id)
	var cancelled []scheduling.Appointment
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.save(ctx, p); err != nil {
			return err
		}
		cancelled, err = s.agenda.CancelForPatient(ctx, id, today)
		return err
	})
	if err != nil {
		s.registry.restore(prev)
		s.agenda.RestoreAppointments(before)
		return Patient{}, nil, fmt.Errorf("deactivate patient %s: %w", id, err)
	}

	s.logger.Info().
		Str("patient_id", id).
		Int("cancelled", len(cancelled)).
		Msg("patient deactivated")
	s.publish(deactivationEvents(p, len(cancelled))...)
	return p, cancelled, nil
}

// Reactivate marks the patient active again. Appointments cancelled on
// deactivation stay cancelled.
func (s *Service) Reactivate(ctx context.Context, id string) (Patient, error) {
	prev, err := s.registry.Get(id)
	if err != nil {
		return Patient{}, err
	}
	p, err := s.registry.Reactivate(id)
	if err != nil {
		return Patient{}, err
	}
	if err := s.save(ctx, p); err != nil {
		s.registry.restore(prev)
		return Patient{}, err
	}
	s.publish(notification.New(notification.SeveritySuccess, "Patient reactivated", p.Name).For("patient", p.ID))
	return p, nil
}

func deactivationEvents(p Patient, cancelled int) []notification.Event {
	agg := notification.New(notification.SeverityInfo, "Appointments cancelled",
		fmt.Sprintf("%d future appointment(s) of %s cancelled", cancelled, p.Name))
	if cancelled > 0 {
		agg.Severity = notification.SeverityWarning
	}
	return []notification.Event{
		agg.For("patient", p.ID),
		notification.New(notification.SeveritySuccess, "Patient deactivated",
			fmt.Sprintf("%s deactivated: %s", p.Name, *p.DeactivationReason)).For("patient", p.ID),
	}
}
