package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/console/internal/domain/scheduling"
	"github.com/clinicops/console/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by PostgreSQL.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id::text, name, cpf, phone, email, active,
			deactivation_reason, deactivation_date, created_at, updated_at
		FROM patients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var (
			p    Patient
			date *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.CPF, &p.Phone, &p.Email, &p.Active,
			&p.DeactivationReason, &date, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		if date != nil {
			d := scheduling.DateOf(*date)
			p.DeactivationDate = &d
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) SavePatient(ctx context.Context, p Patient) error {
	var date *time.Time
	if p.DeactivationDate != nil {
		t := p.DeactivationDate.Time()
		date = &t
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patients (id, name, cpf, phone, email, active,
			deactivation_reason, deactivation_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, phone=EXCLUDED.phone, email=EXCLUDED.email,
			active=EXCLUDED.active, deactivation_reason=EXCLUDED.deactivation_reason,
			deactivation_date=EXCLUDED.deactivation_date, updated_at=EXCLUDED.updated_at`,
		p.ID, p.Name, p.CPF, p.Phone, p.Email, p.Active,
		p.DeactivationReason, date, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: cpf %s", ErrDuplicate, p.CPF)
		}
		return fmt.Errorf("save patient %s: %w", p.ID, err)
	}
	return nil
}
