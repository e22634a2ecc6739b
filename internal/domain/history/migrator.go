package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pet-care-tracker/internal/domain/appointments"

	"github.com/rs/zerolog"
)

const defaultPollInterval = 30 * time.Second

var ErrNoWatcher = errors.New("history: no change watcher configured")

// AppointmentSource es lo que el migrador necesita de appointments.Service.
type AppointmentSource interface {
	ListForPet(ctx context.Context, userID, petID string, includeHidden bool) ([]appointments.Appointment, error)
	ListAwaitingMigration(ctx context.Context) ([]appointments.Appointment, error)
	ListMigrated(ctx context.Context) ([]appointments.Appointment, error)
	MarkMovedToHistory(ctx context.Context, ref appointments.Ref) error
}

// Migrator pasa los turnos Completed a historia clínica.
// Es level-triggered: cada pasada mira el estado actual, no eventos sueltos.
type Migrator struct {
	appts   AppointmentSource
	repo    Repository
	watcher appointments.Watcher
	poll    time.Duration
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

type MigratorOption func(*Migrator)

// WithWatcher habilita notificaciones de cambio; sin watcher WatchPet hace polling.
func WithWatcher(w appointments.Watcher) MigratorOption {
	return func(m *Migrator) { m.watcher = w }
}

func WithPollInterval(d time.Duration) MigratorOption {
	return func(m *Migrator) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithLocation fija la zona con la que se interpreta fecha y turno del turno.
func WithLocation(loc *time.Location) MigratorOption {
	return func(m *Migrator) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithLogger(l zerolog.Logger) MigratorOption {
	return func(m *Migrator) { m.log = l.With().Str("module", "history").Logger() }
}

func NewMigrator(appts AppointmentSource, repo Repository, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		appts: appts,
		repo:  repo,
		poll:  defaultPollInterval,
		loc:   time.Local,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reconcile migra cada turno Completed sin marcar. La marca se escribe solo
// después de guardar la entrada; si el proceso cae en el medio, la próxima
// pasada reescribe la misma entrada (upsert) y marca.
// Devuelve cuántos se migraron; los errores por turno no cortan la pasada.
func (m *Migrator) Reconcile(ctx context.Context, items []appointments.Appointment) (int, error) {
	var errs []error
	migrated := 0

	for _, a := range items {
		if !a.Status.IsCompleted() || a.MovedToHistory {
			continue
		}
		if err := ctx.Err(); err != nil {
			return migrated, err
		}

		if err := m.repo.Put(ctx, m.entryFrom(a)); err != nil {
			m.log.Error().Err(err).Str("appointment_id", a.ID).Msg("history entry write failed")
			errs = append(errs, fmt.Errorf("put entry %s: %w", a.ID, err))
			continue
		}
		if err := m.appts.MarkMovedToHistory(ctx, a.Ref()); err != nil {
			m.log.Error().Err(err).Str("appointment_id", a.ID).Msg("history entry written but flag not set")
			errs = append(errs, fmt.Errorf("mark moved %s: %w", a.ID, err))
			continue
		}

		migrated++
		m.log.Info().
			Str("appointment_id", a.ID).
			Str("user_id", a.UserID).
			Str("pet_id", a.PetID).
			Msg("appointment moved to history")
	}
	return migrated, errors.Join(errs...)
}

// Recover repara turnos marcados como migrados cuya entrada no existe.
func (m *Migrator) Recover(ctx context.Context, items []appointments.Appointment) (int, error) {
	var errs []error
	repaired := 0

	for _, a := range items {
		if !a.Status.IsCompleted() || !a.MovedToHistory {
			continue
		}

		_, err := m.repo.Get(ctx, a.UserID, a.PetID, a.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("get entry %s: %w", a.ID, err))
			continue
		}

		if err := m.repo.Put(ctx, m.entryFrom(a)); err != nil {
			errs = append(errs, fmt.Errorf("recover entry %s: %w", a.ID, err))
			continue
		}
		repaired++
		m.log.Warn().Str("appointment_id", a.ID).Msg("flagged appointment had no history entry, recreated")
	}
	return repaired, errors.Join(errs...)
}

// SweepPet corre Reconcile + Recover sobre los turnos actuales de la mascota.
func (m *Migrator) SweepPet(ctx context.Context, userID, petID string) (int, error) {
	items, err := m.appts.ListForPet(ctx, userID, petID, true)
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}
	return m.sweep(ctx, items)
}

// SweepAll migra todo lo pendiente de todas las mascotas y después repara
// las entradas faltantes de los turnos ya marcados.
func (m *Migrator) SweepAll(ctx context.Context) (int, error) {
	awaiting, err := m.appts.ListAwaitingMigration(ctx)
	if err != nil {
		return 0, fmt.Errorf("list awaiting migration: %w", err)
	}
	migrated, err := m.Reconcile(ctx, awaiting)

	moved, lerr := m.appts.ListMigrated(ctx)
	if lerr != nil {
		return migrated, errors.Join(err, fmt.Errorf("list migrated: %w", lerr))
	}
	_, rerr := m.Recover(ctx, moved)
	return migrated, errors.Join(err, rerr)
}

func (m *Migrator) sweep(ctx context.Context, items []appointments.Appointment) (int, error) {
	migrated, err := m.Reconcile(ctx, items)
	_, rerr := m.Recover(ctx, items)
	return migrated, errors.Join(err, rerr)
}

// WatchPet corre hasta que ctx termine. Con watcher reconcilia en cada snapshot;
// si no hay watcher (o no se pudo abrir) hace polling.
func (m *Migrator) WatchPet(ctx context.Context, userID, petID string) error {
	if _, err := m.SweepPet(ctx, userID, petID); err != nil {
		m.log.Warn().Err(err).Str("pet_id", petID).Msg("initial history sweep failed")
	}

	if m.watcher != nil {
		ch, err := m.watcher.WatchPet(ctx, userID, petID)
		if err == nil {
			for snapshot := range ch {
				if _, err := m.sweep(ctx, snapshot); err != nil {
					m.log.Warn().Err(err).Str("pet_id", petID).Msg("history reconcile failed")
				}
			}
			return ctx.Err()
		}
		m.log.Warn().Err(err).Str("pet_id", petID).Msg("change watch unavailable, falling back to polling")
	}

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.SweepPet(ctx, userID, petID); err != nil {
				m.log.Warn().Err(err).Str("pet_id", petID).Msg("history sweep failed")
			}
		}
	}
}

type petKey struct {
	userID string
	petID  string
}

// Watch sigue el feed de cambios del repositorio y abre un WatchPet por cada
// mascota que aparece. Corre hasta que ctx termine y espera a esos loops.
// Sin watcher devuelve ErrNoWatcher; Run sigue cubriendo todo por polling.
func (m *Migrator) Watch(ctx context.Context) error {
	if m.watcher == nil {
		return ErrNoWatcher
	}
	refs, err := m.watcher.WatchChanges(ctx)
	if err != nil {
		return fmt.Errorf("watch changes: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	followed := make(map[petKey]struct{})
	for ref := range refs {
		key := petKey{userID: ref.UserID, petID: ref.PetID}
		if _, ok := followed[key]; ok {
			continue
		}
		followed[key] = struct{}{}

		wg.Add(1)
		go func(userID, petID string) {
			defer wg.Done()
			_ = m.WatchPet(ctx, userID, petID)
		}(key.userID, key.petID)
	}
	return ctx.Err()
}

// Run es el barrido global en background. Corre hasta que ctx termine.
func (m *Migrator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.poll
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Msg("history migrator started")

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Err(ctx.Err()).Msg("history migrator stopping")
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Migrator) runOnce(ctx context.Context) {
	n, err := m.SweepAll(ctx)
	if err != nil && ctx.Err() == nil {
		m.log.Error().Err(err).Msg("history sweep failed")
	}
	if n > 0 {
		m.log.Info().Int("migrated", n).Msg("history sweep done")
	}
}

func (m *Migrator) entryFrom(a appointments.Appointment) Entry {
	e := Entry{
		ID:            a.ID,
		UserID:        a.UserID,
		PetID:         a.PetID,
		AppointmentID: a.ID,
		Reason:        a.Reason,
		Notes:         a.Notes,
		Date:          a.Date,
		Time:          a.Time,
		Vet:           a.Vet,
		Location:      a.Location,
		Status:        string(appointments.StatusCompleted),
		Timestamp:     m.now().UTC(),
	}
	if t, err := time.ParseInLocation(appointments.DateTimeLayout, a.Date+" "+a.Time, m.loc); err == nil {
		e.OccurredAt = t
	}
	return e
}
