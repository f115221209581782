package patient

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/clinicops/console/internal/domain/scheduling"
)

// Patient is a person with an agenda at the clinic. An inactive patient
// always carries a deactivation reason and date.
type Patient struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	CPF                string           `json:"cpf"`
	Phone              string           `json:"phone"`
	Email              string           `json:"email"`
	Active             bool             `json:"active"`
	DeactivationReason *string          `json:"deactivation_reason,omitempty"`
	DeactivationDate   *scheduling.Date `json:"deactivation_date,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// NormalizeCPF strips everything but digits.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF reports whether cpf (normalized or formatted) has 11 digits with
// matching check digits. Repeated-digit numbers such as 111.111.111-11 are
// rejected.
func ValidCPF(cpf string) bool {
	d := NormalizeCPF(cpf)
	if len(d) != 11 {
		return false
	}
	same := true
	for i := 1; i < 11; i++ {
		if d[i] != d[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	return checkDigit(d[:9], 10) == int(d[9]-'0') && checkDigit(d[:10], 11) == int(d[10]-'0')
}

func checkDigit(digits string, weight int) int {
	sum := 0
	for _, r := range digits {
		sum += int(r-'0') * weight
		weight--
	}
	rem := sum * 10 % 11
	if rem == 10 {
		return 0
	}
	return rem
}

// Validate normalizes p in place and checks its required fields.
func (p *Patient) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !ValidCPF(p.CPF) {
		return fmt.Errorf("%w: invalid cpf", ErrValidation)
	}
	p.CPF = NormalizeCPF(p.CPF)
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return fmt.Errorf("%w: invalid email %q", ErrValidation, p.Email)
		}
	}
	return nil
}
