package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/console/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by PostgreSQL.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// =========== Appointments ===========

const apptCols = `id::text, patient_id, psychologist_id, room_id, date,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), status,
	payment_method, insurance_type, value_cents, appointment_type,
	is_recurring, recurrence_type, notes, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a          Appointment
		date       time.Time
		recurrence *string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.PsychologistID, &a.RoomID, &date,
		&a.StartTime, &a.EndTime, &a.Status,
		&a.PaymentMethod, &a.InsuranceType, &a.Value, &a.AppointmentType,
		&a.IsRecurring, &recurrence, &a.Notes, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Appointment{}, err
	}
	a.Date = DateOf(date)
	if recurrence != nil {
		rt := RecurrenceType(*recurrence)
		a.RecurrenceType = &rt
	}
	return a, nil
}

func (r *repoPG) ListAppointments(ctx context.Context) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+apptCols+` FROM appointments ORDER BY date, start_time`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const upsertAppointment = `
	INSERT INTO appointments (id, patient_id, psychologist_id, room_id, date,
		start_time, end_time, status, payment_method, insurance_type, value_cents,
		appointment_type, is_recurring, recurrence_type, notes, version, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6::time,$7::time,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	ON CONFLICT (id) DO UPDATE SET
		patient_id=EXCLUDED.patient_id, psychologist_id=EXCLUDED.psychologist_id,
		room_id=EXCLUDED.room_id, date=EXCLUDED.date, start_time=EXCLUDED.start_time,
		end_time=EXCLUDED.end_time, status=EXCLUDED.status, payment_method=EXCLUDED.payment_method,
		insurance_type=EXCLUDED.insurance_type, value_cents=EXCLUDED.value_cents,
		appointment_type=EXCLUDED.appointment_type, is_recurring=EXCLUDED.is_recurring,
		recurrence_type=EXCLUDED.recurrence_type, notes=EXCLUDED.notes,
		version=EXCLUDED.version, updated_at=EXCLUDED.updated_at`

func (r *repoPG) SaveAppointments(ctx context.Context, appts ...Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range appts {
		var recurrence *string
		if a.RecurrenceType != nil {
			s := string(*a.RecurrenceType)
			recurrence = &s
		}
		batch.Queue(upsertAppointment,
			a.ID, a.PatientID, a.PsychologistID, a.RoomID, a.Date.Time(),
			a.StartTime, a.EndTime, string(a.Status), a.PaymentMethod, a.InsuranceType, a.Value,
			string(a.AppointmentType), a.IsRecurring, recurrence, a.Notes, a.Version, a.CreatedAt, a.UpdatedAt)
	}
	if err := db.Conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save appointments: %w", err)
	}
	return nil
}

func (r *repoPG) DeleteAppointment(ctx context.Context, id string) error {
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete appointment %s: %w", id, err)
	}
	return nil
}

// =========== Working windows ===========

func (r *repoPG) ListWorkingWindows(ctx context.Context) ([]WorkingWindow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT psychologist_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM working_windows ORDER BY psychologist_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list working windows: %w", err)
	}
	defer rows.Close()

	var out []WorkingWindow
	for rows.Next() {
		var (
			w   WorkingWindow
			day int16
		)
		if err := rows.Scan(&w.PsychologistID, &day, &w.StartTime, &w.EndTime); err != nil {
			return nil, fmt.Errorf("scan working window: %w", err)
		}
		w.DayOfWeek = time.Weekday(day)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *repoPG) ReplaceWorkingWindows(ctx context.Context, psychologistID string, windows []WorkingWindow) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		if _, err := conn.Exec(ctx, `DELETE FROM working_windows WHERE psychologist_id = $1`, psychologistID); err != nil {
			return fmt.Errorf("clear working windows: %w", err)
		}
		if len(windows) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for i, w := range windows {
			batch.Queue(`INSERT INTO working_windows (psychologist_id, day_of_week, start_time, end_time, position)
				VALUES ($1, $2, $3::time, $4::time, $5)`,
				psychologistID, int16(w.DayOfWeek), w.StartTime, w.EndTime, i)
		}
		if err := conn.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert working windows: %w", err)
		}
		return nil
	})
}

// =========== Rooms ===========

func (r *repoPG) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.Name); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *repoPG) SaveRoom(ctx context.Context, rm Room) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO rooms (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, rm.ID, rm.Name)
	if err != nil {
		return fmt.Errorf("save room %s: %w", rm.ID, err)
	}
	return nil
}
