package appointments

import (
	"context"
	"errors"
)

// Errores que los adapters de storage devuelven (envueltos o tal cual).
var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already reserved")
)

// Repository cubre las dos rutas de un turno: el registro por mascota y el espejo admin.
// Los estados se guardan siempre en forma canónica.
type Repository interface {
	CreateForPet(ctx context.Context, a Appointment) error
	CreateMirror(ctx context.Context, a Appointment) error

	GetForPet(ctx context.Context, ref Ref) (Appointment, error)
	GetMirror(ctx context.Context, id string) (Appointment, error)

	UpdateForPet(ctx context.Context, a Appointment) error
	UpdateMirror(ctx context.Context, a Appointment) error

	ListForPet(ctx context.Context, userID, petID string) ([]Appointment, error)
	ListMirror(ctx context.Context, filter MirrorFilter) ([]Appointment, error)

	// ListAwaitingMigration: registros por mascota Completed con MovedToHistory=false.
	ListAwaitingMigration(ctx context.Context) ([]Appointment, error)
	// ListMigrated: registros por mascota Completed con MovedToHistory=true.
	ListMigrated(ctx context.Context) ([]Appointment, error)
}

type MirrorFilter struct {
	Date     string
	Statuses []Status
	Limit    int
}

// AtomicBooker es opcional: si el backend lo soporta, ambos registros se escriben
// en una sola operación condicionada a que (date, time) esté libre.
// Si otro cliente ganó el turno devuelve ErrSlotTaken.
type AtomicBooker interface {
	BookAtomic(ctx context.Context, a Appointment) error
}

// Watcher es opcional. WatchPet entrega un snapshot de los turnos de la mascota
// en cada cambio; WatchChanges entrega la Ref de cada registro por mascota escrito.
// Los canales se cierran cuando ctx termina.
type Watcher interface {
	WatchPet(ctx context.Context, userID, petID string) (<-chan []Appointment, error)
	WatchChanges(ctx context.Context) (<-chan Ref, error)
}

// AvailabilityCache guarda los turnos tomados por fecha para lecturas de UI.
// El flujo de reserva nunca lee de acá.
type AvailabilityCache interface {
	Get(date string) ([]string, bool)
	Put(date string, taken []string)
	Invalidate(date string)
}

// Reminder recibe el turno ya confirmado. Es fire-and-forget.
type Reminder interface {
	Remind(ctx context.Context, a Appointment)
}
