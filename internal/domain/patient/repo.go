package patient

import "context"

// Repository persists the patient directory.
type Repository interface {
	ListPatients(ctx context.Context) ([]Patient, error)
	SavePatient(ctx context.Context, p Patient) error
}
