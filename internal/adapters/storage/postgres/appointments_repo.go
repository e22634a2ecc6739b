package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pet-care-tracker/internal/domain/appointments"
)

// AppointmentsRepo implementa appointments.Repository y appointments.AtomicBooker.
// El índice único parcial appointments_admin_slot_uniq hace de check-and-set.
type AppointmentsRepo struct {
	db *sql.DB
}

func NewAppointmentsRepo(db *sql.DB) *AppointmentsRepo {
	return &AppointmentsRepo{db: db}
}

const perPetColumns = `
	id, user_id, pet_id,
	date, time,
	reason, notes, vet, location,
	status, hidden, moved_to_history,
	created_at, updated_at`

const mirrorColumns = `
	id, user_id, pet_id,
	date, time,
	reason, notes, vet, location,
	status,
	created_at, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *AppointmentsRepo) CreateForPet(ctx context.Context, a appointments.Appointment) error {
	return insertPerPet(ctx, r.db, a)
}

func (r *AppointmentsRepo) CreateMirror(ctx context.Context, a appointments.Appointment) error {
	return insertMirror(ctx, r.db, a)
}

// BookAtomic escribe ambos registros en una transacción. Si otro turno activo
// ya ocupa (date, time) el índice único falla y se devuelve ErrSlotTaken.
func (r *AppointmentsRepo) BookAtomic(ctx context.Context, a appointments.Appointment) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// El espejo primero: es el que tiene el índice único.
	if err = insertMirror(ctx, tx, a); err != nil {
		return err
	}
	if err = insertPerPet(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit()
}

func insertPerPet(ctx context.Context, db execer, a appointments.Appointment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO appointments (`+perPetColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		a.ID, a.UserID, a.PetID,
		a.Date, a.Time,
		a.Reason, a.Notes, a.Vet, a.Location,
		string(a.Status.Normalize()), a.Hidden, a.MovedToHistory,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func insertMirror(ctx context.Context, db execer, a appointments.Appointment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO appointments_admin (`+mirrorColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		a.ID, a.UserID, a.PetID,
		a.Date, a.Time,
		a.Reason, a.Notes, a.Vet, a.Location,
		string(a.Status.Normalize()),
		a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w", a.Date, a.Time, appointments.ErrSlotTaken)
	}
	return err
}

func (r *AppointmentsRepo) GetForPet(ctx context.Context, ref appointments.Ref) (appointments.Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+perPetColumns+`
		FROM appointments
		WHERE user_id = $1 AND pet_id = $2 AND id = $3
	`, ref.UserID, ref.PetID, ref.ID)

	a, err := scanPerPet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appointments.Appointment{}, appointments.ErrNotFound
		}
		return appointments.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentsRepo) GetMirror(ctx context.Context, id string) (appointments.Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return appointments.Appointment{}, appointments.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+mirrorColumns+` FROM appointments_admin WHERE id = $1`, id)

	a, err := scanMirror(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appointments.Appointment{}, appointments.ErrNotFound
		}
		return appointments.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentsRepo) UpdateForPet(ctx context.Context, a appointments.Appointment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET
			reason = $4,
			notes = $5,
			vet = $6,
			location = $7,
			status = $8,
			hidden = $9,
			moved_to_history = $10,
			updated_at = $11
		WHERE user_id = $1 AND pet_id = $2 AND id = $3
	`,
		a.UserID, a.PetID, a.ID,
		a.Reason, a.Notes, a.Vet, a.Location,
		string(a.Status.Normalize()), a.Hidden, a.MovedToHistory,
		a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func (r *AppointmentsRepo) UpdateMirror(ctx context.Context, a appointments.Appointment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments_admin
		SET
			reason = $2,
			notes = $3,
			vet = $4,
			location = $5,
			status = $6,
			updated_at = $7
		WHERE id = $1
	`,
		a.ID,
		a.Reason, a.Notes, a.Vet, a.Location,
		string(a.Status.Normalize()),
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", a.Date, a.Time, appointments.ErrSlotTaken)
		}
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func (r *AppointmentsRepo) ListForPet(ctx context.Context, userID, petID string) ([]appointments.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+perPetColumns+`
		FROM appointments
		WHERE user_id = $1 AND pet_id = $2
		ORDER BY created_at ASC
	`, userID, petID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]appointments.Appointment, 0)
	for rows.Next() {
		a, err := scanPerPet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentsRepo) ListMirror(ctx context.Context, filter appointments.MirrorFilter) ([]appointments.Appointment, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + mirrorColumns + ` FROM appointments_admin WHERE TRUE`)

	args := []any{}
	argN := 1

	if filter.Date != "" {
		sb.WriteString(fmt.Sprintf(" AND date = $%d", argN))
		args = append(args, filter.Date)
		argN++
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argN))
			args = append(args, string(s.Normalize()))
			argN++
		}
		sb.WriteString(" AND status IN (" + strings.Join(placeholders, ",") + ")")
	}

	sb.WriteString(" ORDER BY created_at ASC")

	if filter.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]appointments.Appointment, 0)
	for rows.Next() {
		a, err := scanMirror(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentsRepo) ListAwaitingMigration(ctx context.Context) ([]appointments.Appointment, error) {
	return r.listCompleted(ctx, false)
}

func (r *AppointmentsRepo) ListMigrated(ctx context.Context) ([]appointments.Appointment, error) {
	return r.listCompleted(ctx, true)
}

func (r *AppointmentsRepo) listCompleted(ctx context.Context, moved bool) ([]appointments.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+perPetColumns+`
		FROM appointments
		WHERE moved_to_history = $1 AND status = $2
		ORDER BY created_at ASC
	`, moved, string(appointments.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]appointments.Appointment, 0)
	for rows.Next() {
		a, err := scanPerPet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanPerPet(s rowScanner) (appointments.Appointment, error) {
	var a appointments.Appointment
	var status string
	if err := s.Scan(
		&a.ID, &a.UserID, &a.PetID,
		&a.Date, &a.Time,
		&a.Reason, &a.Notes, &a.Vet, &a.Location,
		&status, &a.Hidden, &a.MovedToHistory,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return appointments.Appointment{}, err
	}
	a.Status = appointments.Status(status).Normalize()
	return a, nil
}

func scanMirror(s rowScanner) (appointments.Appointment, error) {
	var a appointments.Appointment
	var status string
	if err := s.Scan(
		&a.ID, &a.UserID, &a.PetID,
		&a.Date, &a.Time,
		&a.Reason, &a.Notes, &a.Vet, &a.Location,
		&status,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return appointments.Appointment{}, err
	}
	a.Status = appointments.Status(status).Normalize()
	return a, nil
}
