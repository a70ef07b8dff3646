package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Appointment Store ===========

type appointmentStorePG struct{ conn queryable }

// NewAppointmentStorePG returns an AppointmentStore backed by the
// appointments table (see migrations/001_appointments.sql).
func NewAppointmentStorePG(pool *pgxpool.Pool) AppointmentStore {
	return &appointmentStorePG{conn: pool}
}

const apptCols = `request_id, provider_id, start_minute, end_minute, status, created_at, updated_at`

func (r *appointmentStorePG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.RequestID, &a.ProviderID, &a.Start, &a.End, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentStorePG) Save(ctx context.Context, a *Appointment) error {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO appointments (request_id, provider_id, start_minute, end_minute, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		a.RequestID, a.ProviderID, a.Start, a.End, string(a.Status))
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("save appointment %s: %w", a.RequestID, err)
	}
	return nil
}

func (r *appointmentStorePG) Get(ctx context.Context, requestID string) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE request_id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", requestID, err)
	}
	return a, nil
}

func (r *appointmentStorePG) List(ctx context.Context, status AppointmentStatus, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE ($1 = '' OR status = $1)`, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT ` + apptCols + ` FROM appointments WHERE ($1 = '' OR status = $1) ORDER BY seq OFFSET $2`
	args := []interface{}{string(status), offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate appointments: %w", err)
	}
	return items, total, nil
}

func (r *appointmentStorePG) MarkCancelled(ctx context.Context, requestIDs []string) error {
	if len(requestIDs) == 0 {
		return nil
	}
	_, err := r.conn.Exec(ctx,
		`UPDATE appointments SET status = $1, updated_at = NOW() WHERE request_id = ANY($2)`,
		string(StatusCancelled), requestIDs)
	if err != nil {
		return fmt.Errorf("cancel appointments: %w", err)
	}
	return nil
}
