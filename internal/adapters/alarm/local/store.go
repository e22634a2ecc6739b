package local

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pet-care-tracker/internal/domain/reminders"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store persiste las alarmas pendientes para sobrevivir reinicios.
type Store interface {
	Save(ctx context.Context, a reminders.Alarm) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]reminders.Alarm, error)
}

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite abre (o crea) la base de alarmas. path ":memory:" sirve para tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// una sola conexión: sqlite serializa escrituras y :memory: es por conexión
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("alarm schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, a reminders.Alarm) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alarms (id, trigger_at, appointment_id, user_id, pet_id, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.TriggerAt.UTC().Format(time.RFC3339Nano),
		a.Payload.AppointmentID,
		a.Payload.UserID,
		a.Payload.PetID,
		a.Payload.Reason,
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]reminders.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_at, appointment_id, user_id, pet_id, reason
		FROM alarms
		ORDER BY trigger_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminders.Alarm, 0)
	for rows.Next() {
		var a reminders.Alarm
		var trigger string
		if err := rows.Scan(
			&a.ID,
			&trigger,
			&a.Payload.AppointmentID,
			&a.Payload.UserID,
			&a.Payload.PetID,
			&a.Payload.Reason,
		); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, trigger)
		if err != nil {
			return nil, fmt.Errorf("alarm %s: bad trigger_at %q: %w", a.ID, trigger, err)
		}
		a.TriggerAt = t
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
