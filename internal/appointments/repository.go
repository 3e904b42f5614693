package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository provides persistence for appointments.
type Repository interface {
	List(ctx context.Context) ([]Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	Create(ctx context.Context, req *CreateRequest) (*Appointment, error)
	Update(ctx context.Context, id string, patch Update) (*Appointment, error)
	Delete(ctx context.Context, id string) error
}

var appointmentsTracer = otel.Tracer("calenderapp.internal.appointments")

const appointmentColumns = `id, patient_name, phone_number, appointment_time, status, notes, created_at, updated_at`

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	db     pgxQuerier
	tracer trace.Tracer
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool, tracer: appointmentsTracer}
}

// NewPostgresRepositoryWithQuerier allows injecting mocks for tests.
func NewPostgresRepositoryWithQuerier(db pgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db, tracer: appointmentsTracer}
}

// pgxQuerier matches both *pgxpool.Pool and pgxmock pools.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// List returns all appointments ordered by scheduled time.
func (r *PostgresRepository) List(ctx context.Context) ([]Appointment, error) {
	ctx, span := r.tracer.Start(ctx, "appointments.list")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY appointment_time ASC
	`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	span.SetAttributes(attribute.Int("calenderapp.appointments.count", len(out)))
	return out, nil
}

// Get fetches one appointment by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := r.tracer.Start(ctx, "appointments.get")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "appointments.create")
	defer span.End()

	id := uuid.New().String()
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_name, phone_number, appointment_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+appointmentColumns+`
	`, id, req.PatientName, req.PhoneNumber, req.AppointmentTime, req.Status, req.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}
	return appt, nil
}

// Update applies a sparse patch and returns the updated row. Nil patch
// fields keep their stored values.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch Update) (*Appointment, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "appointments.update")
	defer span.End()
	span.SetAttributes(attribute.String("calenderapp.appointment_id", id))

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status           = COALESCE($2, status),
		    appointment_time = COALESCE($3, appointment_time),
		    notes            = COALESCE($4, notes),
		    updated_at       = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, patch.Status, patch.AppointmentTime, patch.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: update failed: %w", err)
	}
	return appt, nil
}

// Delete removes an appointment.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "appointments.delete")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING id
	`, id)
	var deleted string
	if err := row.Scan(&deleted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("appointments: delete failed: %w", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var notes *string
	if err := row.Scan(
		&appt.ID,
		&appt.PatientName,
		&appt.PhoneNumber,
		&appt.AppointmentTime,
		&appt.Status,
		&notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if notes != nil {
		appt.Notes = *notes
	}
	return &appt, nil
}
