package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"

	// statusScheduled is accepted on input and treated as pending.
	statusScheduled Status = "scheduled"
)

// transitions lists the allowed edges. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// ParseStatus normalizes a status string. "scheduled" maps to pending.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	case statusScheduled:
		return StatusPending, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether s is one of the non-terminal states.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AppointmentType distinguishes in-person from remote sessions.
type AppointmentType string

const (
	TypePresential AppointmentType = "presential"
	TypeOnline     AppointmentType = "online"
)

// RecurrenceType is the repetition stride of a recurring appointment.
type RecurrenceType string

const (
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
)

// Occurrence returns the date of the n-th repetition after start. Monthly
// repetitions keep start's day of month, clamped to the month's last day.
func (r RecurrenceType) Occurrence(start Date, n int) (Date, bool) {
	switch r {
	case RecurrenceWeekly:
		return start.AddDays(7 * n), true
	case RecurrenceBiweekly:
		return start.AddDays(14 * n), true
	case RecurrenceMonthly:
		return start.AddMonths(n), true
	}
	return Date{}, false
}

// Room is a consultation room a presential appointment can occupy.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Appointment is a booked session between a patient and a psychologist.
type Appointment struct {
	ID              string          `json:"id"`
	PatientID       string          `json:"patient_id"`
	PsychologistID  string          `json:"psychologist_id"`
	RoomID          *string         `json:"room_id,omitempty"`
	Date            Date            `json:"date"`
	StartTime       string          `json:"start_time"`
	EndTime         string          `json:"end_time"`
	Status          Status          `json:"status"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	InsuranceType   *string         `json:"insurance_type,omitempty"`
	Value           int64           `json:"value"` // cents
	AppointmentType AppointmentType `json:"appointment_type"`
	IsRecurring     bool            `json:"is_recurring"`
	RecurrenceType  *RecurrenceType `json:"recurrence_type,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Range returns the parsed time range of the appointment.
func (a *Appointment) Range() (TimeRange, error) {
	return ParseTimeRange(a.StartTime, a.EndTime)
}

// StartsAt returns the appointment start as an instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	m, err := ParseClock(a.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return a.Date.At(m, loc), nil
}

// Validate checks the field invariants of a to-be-stored appointment and
// fills defaults (status pending, type presential).
func (a *Appointment) Validate() error {
	if strings.TrimSpace(a.PatientID) == "" {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if strings.TrimSpace(a.PsychologistID) == "" {
		return fmt.Errorf("%w: psychologist_id is required", ErrValidation)
	}
	if a.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if _, err := a.Range(); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = StatusPending
	} else {
		st, err := ParseStatus(string(a.Status))
		if err != nil {
			return err
		}
		a.Status = st
	}
	switch a.AppointmentType {
	case "":
		a.AppointmentType = TypePresential
	case TypePresential, TypeOnline:
	default:
		return fmt.Errorf("%w: unknown appointment_type %q", ErrValidation, a.AppointmentType)
	}
	if a.Value < 0 {
		return fmt.Errorf("%w: value must not be negative", ErrValidation)
	}
	if a.IsRecurring {
		if a.RecurrenceType == nil {
			return fmt.Errorf("%w: recurrence_type is required for recurring appointments", ErrValidation)
		}
		if _, ok := a.RecurrenceType.Occurrence(a.Date, 1); !ok {
			return fmt.Errorf("%w: unknown recurrence_type %q", ErrValidation, *a.RecurrenceType)
		}
	}
	return nil
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
