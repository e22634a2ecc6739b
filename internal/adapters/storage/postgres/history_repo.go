package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pet-care-tracker/internal/domain/history"
)

type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

const historyColumns = `
	id, user_id, pet_id, appointment_id,
	reason, notes, date, time, vet, location,
	status, occurred_at, timestamp`

// Put es un upsert por id (= id del turno de origen).
func (r *HistoryRepo) Put(ctx context.Context, e history.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO medical_history (`+historyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			reason = EXCLUDED.reason,
			notes = EXCLUDED.notes,
			date = EXCLUDED.date,
			time = EXCLUDED.time,
			vet = EXCLUDED.vet,
			location = EXCLUDED.location,
			status = EXCLUDED.status,
			occurred_at = EXCLUDED.occurred_at,
			timestamp = EXCLUDED.timestamp
	`,
		e.ID, e.UserID, e.PetID, e.AppointmentID,
		e.Reason, e.Notes, e.Date, e.Time, e.Vet, e.Location,
		e.Status, toNullTime(e.OccurredAt), e.Timestamp,
	)
	return err
}

func (r *HistoryRepo) Get(ctx context.Context, userID, petID, id string) (history.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM medical_history
		WHERE user_id = $1 AND pet_id = $2 AND id = $3
	`, userID, petID, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Entry{}, history.ErrNotFound
		}
		return history.Entry{}, err
	}
	return e, nil
}

func (r *HistoryRepo) ListByPet(ctx context.Context, userID, petID string, filter history.ListFilter) ([]history.Entry, error) {
	userID = strings.TrimSpace(userID)
	petID = strings.TrimSpace(petID)
	if userID == "" || petID == "" {
		return nil, nil
	}

	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + historyColumns + ` FROM medical_history WHERE user_id = $1 AND pet_id = $2`)

	args := []any{userID, petID}
	argN := 3

	if filter.From != nil {
		sb.WriteString(fmt.Sprintf(" AND occurred_at >= $%d", argN))
		args = append(args, *filter.From)
		argN++
	}
	if filter.To != nil {
		sb.WriteString(fmt.Sprintf(" AND occurred_at <= $%d", argN))
		args = append(args, *filter.To)
		argN++
	}

	// q: búsqueda simple en reason + notes + vet
	if q := strings.TrimSpace(filter.Query); q != "" {
		sb.WriteString(fmt.Sprintf(" AND (reason ILIKE $%d OR notes ILIKE $%d OR vet ILIKE $%d)", argN, argN, argN))
		args = append(args, "%"+q+"%")
		argN++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	sb.WriteString(" ORDER BY occurred_at DESC NULLS LAST, id")
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]history.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(s rowScanner) (history.Entry, error) {
	var e history.Entry
	var occurred sql.NullTime
	if err := s.Scan(
		&e.ID, &e.UserID, &e.PetID, &e.AppointmentID,
		&e.Reason, &e.Notes, &e.Date, &e.Time, &e.Vet, &e.Location,
		&e.Status, &occurred, &e.Timestamp,
	); err != nil {
		return history.Entry{}, err
	}
	if occurred.Valid {
		e.OccurredAt = occurred.Time
	}
	return e, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
