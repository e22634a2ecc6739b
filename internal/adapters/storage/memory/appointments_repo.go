package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"pet-care-tracker/internal/domain/appointments"
)

type petKey struct {
	userID string
	petID  string
}

// AppointmentRepo guarda el registro por mascota y el espejo admin en dos mapas
// separados, igual que el documento remoto: no hay transacción entre ambos.
// Implementa appointments.Watcher.
type AppointmentRepo struct {
	mu     sync.RWMutex
	perPet map[appointments.Ref]appointments.Appointment
	mirror map[string]appointments.Appointment

	subs    map[petKey]map[int]chan []appointments.Appointment
	changes map[int]chan appointments.Ref
	nextSub int
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{
		perPet:  make(map[appointments.Ref]appointments.Appointment),
		mirror:  make(map[string]appointments.Appointment),
		subs:    make(map[petKey]map[int]chan []appointments.Appointment),
		changes: make(map[int]chan appointments.Ref),
	}
}

func (r *AppointmentRepo) CreateForPet(ctx context.Context, a appointments.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(a.ID) == "" {
		return errors.New("appointment id required")
	}
	if _, exists := r.perPet[a.Ref()]; exists {
		return errors.New("appointment already exists")
	}
	r.perPet[a.Ref()] = a
	r.publishLocked(a.Ref())
	return nil
}

func (r *AppointmentRepo) CreateMirror(ctx context.Context, a appointments.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(a.ID) == "" {
		return errors.New("appointment id required")
	}
	if _, exists := r.mirror[a.ID]; exists {
		return errors.New("mirror already exists")
	}
	r.mirror[a.ID] = a
	return nil
}

func (r *AppointmentRepo) GetForPet(ctx context.Context, ref appointments.Ref) (appointments.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.perPet[ref]
	if !ok {
		return appointments.Appointment{}, appointments.ErrNotFound
	}
	return a, nil
}

func (r *AppointmentRepo) GetMirror(ctx context.Context, id string) (appointments.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.mirror[id]
	if !ok {
		return appointments.Appointment{}, appointments.ErrNotFound
	}
	return a, nil
}

func (r *AppointmentRepo) UpdateForPet(ctx context.Context, a appointments.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.perPet[a.Ref()]; !ok {
		return appointments.ErrNotFound
	}
	r.perPet[a.Ref()] = a
	r.publishLocked(a.Ref())
	return nil
}

func (r *AppointmentRepo) UpdateMirror(ctx context.Context, a appointments.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mirror[a.ID]; !ok {
		return appointments.ErrNotFound
	}
	r.mirror[a.ID] = a
	return nil
}

func (r *AppointmentRepo) ListForPet(ctx context.Context, userID, petID string) ([]appointments.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked(userID, petID), nil
}

func (r *AppointmentRepo) ListMirror(ctx context.Context, filter appointments.MirrorFilter) ([]appointments.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]appointments.Appointment, 0)
	for _, a := range r.mirror {
		if filter.Date != "" && a.Date != filter.Date {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(a.Status, filter.Statuses) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := slotInstant(out[i]), slotInstant(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *AppointmentRepo) ListAwaitingMigration(ctx context.Context) ([]appointments.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]appointments.Appointment, 0)
	for _, a := range r.perPet {
		if a.Status.IsCompleted() && !a.MovedToHistory {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *AppointmentRepo) ListMigrated(ctx context.Context) ([]appointments.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]appointments.Appointment, 0)
	for _, a := range r.perPet {
		if a.Status.IsCompleted() && a.MovedToHistory {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// WatchPet entrega el snapshot actual y uno nuevo después de cada escritura
// sobre los registros de la mascota. Si el consumidor se atrasa, solo queda el último.
func (r *AppointmentRepo) WatchPet(ctx context.Context, userID, petID string) (<-chan []appointments.Appointment, error) {
	ch := make(chan []appointments.Appointment, 1)
	key := petKey{userID: userID, petID: petID}

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	if r.subs[key] == nil {
		r.subs[key] = make(map[int]chan []appointments.Appointment)
	}
	r.subs[key][id] = ch
	ch <- r.snapshotLocked(userID, petID)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[key], id)
		if len(r.subs[key]) == 0 {
			delete(r.subs, key)
		}
		close(ch)
	}()

	return ch, nil
}

// WatchChanges entrega la Ref de cada alta o cambio de un registro por mascota.
// Con el buffer lleno la notificación se descarta; el sweep periódico la cubre.
func (r *AppointmentRepo) WatchChanges(ctx context.Context) (<-chan appointments.Ref, error) {
	ch := make(chan appointments.Ref, 64)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.changes[id] = ch
	r.mu.Unlock()

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.changes, id)
		close(ch)
	}()

	return ch, nil
}

// publishLocked requiere r.mu tomado en escritura.
func (r *AppointmentRepo) publishLocked(ref appointments.Ref) {
	for _, ch := range r.changes {
		select {
		case ch <- ref:
		default:
		}
	}

	subs := r.subs[petKey{userID: ref.UserID, petID: ref.PetID}]
	if len(subs) == 0 {
		return
	}

	snap := r.snapshotLocked(ref.UserID, ref.PetID)
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// descarta el snapshot viejo y deja el último
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (r *AppointmentRepo) snapshotLocked(userID, petID string) []appointments.Appointment {
	out := make([]appointments.Appointment, 0)
	for ref, a := range r.perPet {
		if ref.UserID == userID && ref.PetID == petID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// slotInstant ordena por fecha y turno reales; MM/dd/yyyy no ordena como texto.
func slotInstant(a appointments.Appointment) time.Time {
	t, err := time.Parse(appointments.DateTimeLayout, a.Date+" "+a.Time)
	if err != nil {
		return time.Time{}
	}
	return t
}

func statusIn(s appointments.Status, list []appointments.Status) bool {
	n := s.Normalize()
	for _, x := range list {
		if x.Normalize() == n {
			return true
		}
	}
	return false
}
