package patient

import (
	"errors"

	"github.com/clinicops/console/internal/domain/scheduling"
)

// Patients share the engine's error kinds so callers map them uniformly.
var (
	ErrValidation = scheduling.ErrValidation
	ErrNotFound   = scheduling.ErrNotFound
	ErrDuplicate  = errors.New("patient already registered")
)
