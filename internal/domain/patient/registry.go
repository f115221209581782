package patient

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/console/internal/domain/scheduling"
)

// Registry is the in-memory patient directory. CPFs are unique.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Patient
	byCPF map[string]string
	now   func() time.Time
	newID func() string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the time source.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryIDs overrides id generation.
func WithRegistryIDs(fn func() string) RegistryOption {
	return func(r *Registry) { r.newID = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:  make(map[string]Patient),
		byCPF: make(map[string]string),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Filter narrows List. A nil Active matches both states; Query matches a
// case-insensitive substring of the name or a CPF prefix.
type Filter struct {
	Active *bool
	Query  string
}

func (f Filter) match(p *Patient) bool {
	if f.Active != nil && p.Active != *f.Active {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		name := strings.Contains(strings.ToLower(p.Name), strings.ToLower(q))
		digits := NormalizeCPF(q)
		cpf := digits != "" && strings.HasPrefix(p.CPF, digits)
		if !name && !cpf {
			return false
		}
	}
	return true
}

// Load replaces the registry contents.
func (r *Registry) Load(patients []Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]Patient, len(patients))
	r.byCPF = make(map[string]string, len(patients))
	for _, p := range patients {
		r.byID[p.ID] = p
		r.byCPF[p.CPF] = p.ID
	}
}

// Get returns the patient with id.
func (r *Registry) Get(id string) (Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Patient{}, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns matching patients ordered by name.
func (r *Registry) List(f Filter) []Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Patient, 0, len(r.byID))
	for _, p := range r.byID {
		if f.match(&p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Create registers a new active patient.
func (r *Registry) Create(p Patient) (Patient, error) {
	if err := p.Validate(); err != nil {
		return Patient{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byCPF[p.CPF]; taken {
		return Patient{}, fmt.Errorf("%w: cpf %s", ErrDuplicate, p.CPF)
	}
	now := r.now().UTC()
	p.ID = r.newID()
	p.Active = true
	p.DeactivationReason = nil
	p.DeactivationDate = nil
	p.CreatedAt, p.UpdatedAt = now, now
	r.byID[p.ID] = p
	r.byCPF[p.CPF] = p.ID
	return p, nil
}

// UpdateContact changes name, phone and email. CPF and activation state are
// not editable here.
func (r *Registry) UpdateContact(id, name, phone, email string) (Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Patient{}, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	p.Name, p.Phone, p.Email = name, phone, email
	if err := p.Validate(); err != nil {
		return Patient{}, err
	}
	p.UpdatedAt = r.now().UTC()
	r.byID[id] = p
	return p, nil
}

// Deactivate marks the patient inactive on today with reason.
func (r *Registry) Deactivate(id, reason string, today scheduling.Date) (Patient, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Patient{}, fmt.Errorf("%w: deactivation reason is required", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Patient{}, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	if !p.Active {
		return Patient{}, fmt.Errorf("%w: patient %s is already inactive", ErrValidation, id)
	}
	p.Active = false
	p.DeactivationReason = &reason
	p.DeactivationDate = &today
	p.UpdatedAt = r.now().UTC()
	r.byID[id] = p
	return p, nil
}

// Reactivate marks the patient active and clears the deactivation fields.
func (r *Registry) Reactivate(id string) (Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Patient{}, fmt.Errorf("%w: patient %s", ErrNotFound, id)
	}
	if p.Active {
		return Patient{}, fmt.Errorf("%w: patient %s is already active", ErrValidation, id)
	}
	p.Active = true
	p.DeactivationReason = nil
	p.DeactivationDate = nil
	p.UpdatedAt = r.now().UTC()
	r.byID[id] = p
	return p, nil
}

// restore puts back a previous version after a failed write-through.
func (r *Registry) restore(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	r.byCPF[p.CPF] = p.ID
}

// discard drops a patient created by a failed write-through.
func (r *Registry) discard(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, p.ID)
	if r.byCPF[p.CPF] == p.ID {
		delete(r.byCPF, p.CPF)
	}
}
