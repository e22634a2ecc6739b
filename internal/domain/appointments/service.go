package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrSlotConflict = errors.New("slot conflict")
	ErrStoreWrite   = errors.New("store write failed")
	ErrBadState     = errors.New("invalid state")
)

// ConflictError acompaña a ErrSlotConflict con la partición recién leída,
// para que el cliente vuelva a ofrecer turnos sin otra consulta.
type ConflictError struct {
	Date         string
	Time         string
	Availability Availability
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s %s is no longer available", e.Date, e.Time)
}

func (e *ConflictError) Unwrap() error { return ErrSlotConflict }

type Service struct {
	repo     Repository
	cache    AvailabilityCache
	reminder Reminder
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string

	// genMu protege gen: cuántas invalidaciones vio cada fecha.
	genMu sync.Mutex
	gen   map[string]uint64
}

type Option func(*Service)

func WithCache(c AvailabilityCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithReminder(r Reminder) Option {
	return func(s *Service) { s.reminder = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("module", "appointments").Logger() }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		log:   zerolog.Nop(),
		now:   time.Now,
		newID: uuid.NewString,
		gen:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TakenSlots consulta el espejo admin por fecha. Ante un error de lectura
// devuelve el conjunto vacío (fail open): la reserva no se bloquea por el storage.
func (s *Service) TakenSlots(ctx context.Context, date string) map[string]struct{} {
	taken, err := s.readTaken(ctx, date)
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("availability read failed, treating every slot as free")
		return map[string]struct{}{}
	}
	return taken
}

func (s *Service) readTaken(ctx context.Context, date string) (map[string]struct{}, error) {
	items, err := s.repo.ListMirror(ctx, MirrorFilter{
		Date:     date,
		Statuses: OccupyingStatuses(),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]struct{}, len(items))
	for _, a := range items {
		if a.Date != date || !a.Status.Occupies() {
			continue
		}
		out[a.Time] = struct{}{}
	}
	return out, nil
}

// Availability es la lectura para mostrar; puede venir del cache.
func (s *Service) Availability(ctx context.Context, date string) Availability {
	var gen uint64
	if s.cache != nil {
		if labels, ok := s.cache.Get(date); ok {
			return Partition(date, toSet(labels))
		}
		gen = s.generation(date)
	}

	taken, err := s.readTaken(ctx, date)
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("availability read failed, treating every slot as free")
		return Partition(date, nil)
	}

	av := Partition(date, taken)
	if s.cache != nil {
		s.putIfCurrent(date, gen, av.Taken)
	}
	return av
}

func (s *Service) generation(date string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gen[date]
}

// putIfCurrent no guarda una lectura que empezó antes de una invalidación de la misma fecha.
func (s *Service) putIfCurrent(date string, gen uint64, taken []string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gen[date] != gen {
		return
	}
	s.cache.Put(date, taken)
}

func (s *Service) invalidate(date string) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	s.gen[date]++
	s.genMu.Unlock()
	s.cache.Invalidate(date)
}

type BookInput struct {
	Date     string
	Time     string
	Reason   string
	Notes    string
	Vet      string
	Location string
}

// Book reserva un turno:
//  1. relee los turnos tomados justo antes de escribir (nunca desde cache)
//  2. si el turno ya está tomado devuelve *ConflictError con la partición nueva
//  3. escribe registro por mascota + espejo admin con el mismo ID
//
// Sin AtomicBooker queda una ventana de carrera entre 1 y 3 con clientes concurrentes.
func (s *Service) Book(ctx context.Context, userID, petID string, in BookInput) (Appointment, error) {
	userID = strings.TrimSpace(userID)
	petID = strings.TrimSpace(petID)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.Reason = strings.TrimSpace(in.Reason)

	if userID == "" || petID == "" {
		return Appointment{}, ErrInvalidInput
	}
	if in.Date == "" || in.Time == "" || in.Reason == "" {
		return Appointment{}, ErrInvalidInput
	}
	if !IsSlot(in.Time) {
		return Appointment{}, ErrInvalidInput
	}

	taken := s.TakenSlots(ctx, in.Date)
	if _, ok := taken[in.Time]; ok {
		return Appointment{}, &ConflictError{
			Date:         in.Date,
			Time:         in.Time,
			Availability: Partition(in.Date, taken),
		}
	}

	now := s.now()
	a := Appointment{
		ID:        s.newID(),
		UserID:    userID,
		PetID:     petID,
		Date:      in.Date,
		Time:      in.Time,
		Reason:    in.Reason,
		Notes:     strings.TrimSpace(in.Notes),
		Vet:       strings.TrimSpace(in.Vet),
		Location:  strings.TrimSpace(in.Location),
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.write(ctx, a); err != nil {
		return Appointment{}, err
	}

	s.invalidate(a.Date)

	s.log.Info().
		Str("appointment_id", a.ID).
		Str("user_id", a.UserID).
		Str("pet_id", a.PetID).
		Str("date", a.Date).
		Str("time", a.Time).
		Msg("appointment booked")

	if s.reminder != nil {
		s.reminder.Remind(ctx, a)
	}
	return a, nil
}

func (s *Service) write(ctx context.Context, a Appointment) error {
	if atomic, ok := s.repo.(AtomicBooker); ok {
		err := atomic.BookAtomic(ctx, a)
		if errors.Is(err, ErrSlotTaken) {
			taken := s.TakenSlots(ctx, a.Date)
			taken[a.Time] = struct{}{}
			return &ConflictError{
				Date:         a.Date,
				Time:         a.Time,
				Availability: Partition(a.Date, taken),
			}
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		return nil
	}

	// Dos escrituras sin transacción: si falla el espejo queda un registro
	// por mascota huérfano. No hay rollback.
	if err := s.repo.CreateForPet(ctx, a); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := s.repo.CreateMirror(ctx, a); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", a.ID).
			Str("user_id", a.UserID).
			Str("pet_id", a.PetID).
			Msg("mirror write failed, per-pet record left without mirror")
		return fmt.Errorf("%w: mirror: %v", ErrStoreWrite, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, ref Ref) (Appointment, error) {
	a, err := s.repo.GetForPet(ctx, ref)
	if err != nil {
		return Appointment{}, mapNotFound(err)
	}
	return a, nil
}

// ListForPet oculta Hidden y Cancelled salvo includeHidden. Orden por CreatedAt.
func (s *Service) ListForPet(ctx context.Context, userID, petID string, includeHidden bool) ([]Appointment, error) {
	items, err := s.repo.ListForPet(ctx, userID, petID)
	if err != nil {
		return nil, err
	}

	out := make([]Appointment, 0, len(items))
	for _, a := range items {
		if !includeHidden && (a.Hidden || a.Status.Normalize() == StatusCancelled) {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) ListMirror(ctx context.Context, filter MirrorFilter) ([]Appointment, error) {
	statuses := make([]Status, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, st.Normalize())
	}
	filter.Statuses = statuses
	return s.repo.ListMirror(ctx, filter)
}

func (s *Service) ListAwaitingMigration(ctx context.Context) ([]Appointment, error) {
	return s.repo.ListAwaitingMigration(ctx)
}

func (s *Service) ListMigrated(ctx context.Context) ([]Appointment, error) {
	return s.repo.ListMigrated(ctx)
}

func (s *Service) Cancel(ctx context.Context, ref Ref) (Appointment, error) {
	return s.transition(ctx, ref, StatusCancelled)
}

// MarkPending lo usa el receptor de recordatorios al dispararse la alarma.
func (s *Service) MarkPending(ctx context.Context, ref Ref) (Appointment, error) {
	return s.transition(ctx, ref, StatusPending)
}

// Hide solo afecta listados; el registro no se borra.
func (s *Service) Hide(ctx context.Context, ref Ref) (Appointment, error) {
	a, err := s.repo.GetForPet(ctx, ref)
	if err != nil {
		return Appointment{}, mapNotFound(err)
	}
	if a.Hidden {
		return a, nil
	}

	a.Hidden = true
	a.UpdatedAt = s.now()
	if err := s.repo.UpdateForPet(ctx, a); err != nil {
		return Appointment{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return a, nil
}

// MarkMovedToHistory es idempotente: si ya estaba marcado no escribe.
func (s *Service) MarkMovedToHistory(ctx context.Context, ref Ref) error {
	a, err := s.repo.GetForPet(ctx, ref)
	if err != nil {
		return mapNotFound(err)
	}
	if a.MovedToHistory {
		return nil
	}

	a.MovedToHistory = true
	a.UpdatedAt = s.now()
	if err := s.repo.UpdateForPet(ctx, a); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

// SetStatus es la acción de operador sobre el espejo admin; se propaga al registro por mascota.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	next, err := ParseStatus(string(status))
	if err != nil {
		return Appointment{}, ErrInvalidInput
	}

	m, err := s.repo.GetMirror(ctx, strings.TrimSpace(id))
	if err != nil {
		return Appointment{}, mapNotFound(err)
	}
	if m.Status.Normalize() == next {
		return s.Get(ctx, m.Ref())
	}
	if m.Status.IsTerminal() {
		return Appointment{}, ErrBadState
	}

	now := s.now()
	m.Status = next
	m.UpdatedAt = now
	if err := s.repo.UpdateMirror(ctx, m); err != nil {
		return Appointment{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	s.invalidate(m.Date)

	a, err := s.repo.GetForPet(ctx, m.Ref())
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", m.ID).Msg("mirror updated but per-pet record not readable")
		return Appointment{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	a.Status = next
	a.UpdatedAt = now
	if err := s.repo.UpdateForPet(ctx, a); err != nil {
		return Appointment{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	s.log.Info().Str("appointment_id", a.ID).Str("status", string(next)).Msg("appointment status set by operator")
	return a, nil
}

func (s *Service) transition(ctx context.Context, ref Ref, next Status) (Appointment, error) {
	a, err := s.repo.GetForPet(ctx, ref)
	if err != nil {
		return Appointment{}, mapNotFound(err)
	}
	if a.Status.Normalize() == next {
		return a, nil
	}
	if a.Status.IsTerminal() {
		return Appointment{}, ErrBadState
	}

	now := s.now()
	a.Status = next
	a.UpdatedAt = now
	if err := s.repo.UpdateForPet(ctx, a); err != nil {
		return Appointment{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	m, err := s.repo.GetMirror(ctx, a.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.log.Warn().Str("appointment_id", a.ID).Msg("per-pet record has no mirror, status not mirrored")
	case err != nil:
		return Appointment{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	default:
		m.Status = next
		m.UpdatedAt = now
		if err := s.repo.UpdateMirror(ctx, m); err != nil {
			return Appointment{}, fmt.Errorf("%w: mirror: %v", ErrStoreWrite, err)
		}
	}

	s.invalidate(a.Date)
	return a, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func toSet(labels []string) map[string]struct{} {
	out := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		out[l] = struct{}{}
	}
	return out
}
