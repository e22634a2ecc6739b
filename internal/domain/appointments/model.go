package appointments

import (
	"errors"
	"strings"
	"time"
)

// Formatos de wire compartidos con los clientes y con los datos ya guardados.
const (
	DateLayout     = "01/02/2006" // MM/dd/yyyy
	TimeLayout     = "03:04 PM"   // hh:mm a
	DateTimeLayout = DateLayout + " " + TimeLayout
)

// Status usa una sola capitalización canónica; la entrada se normaliza con ParseStatus.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus compara sin distinguir mayúsculas ("completed", "COMPLETED", ...).
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scheduled":
		return StatusScheduled, nil
	case "pending":
		return StatusPending, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Normalize devuelve la forma canónica, o el valor tal cual si no se reconoce.
func (s Status) Normalize() Status {
	if c, err := ParseStatus(string(s)); err == nil {
		return c
	}
	return s
}

// Occupies indica si el turno queda tomado para su fecha.
func (s Status) Occupies() bool {
	switch s.Normalize() {
	case StatusScheduled, StatusPending:
		return true
	default:
		return false
	}
}

func (s Status) IsCompleted() bool { return s.Normalize() == StatusCompleted }

// IsTerminal: Completed y Cancelled no vuelven atrás.
func (s Status) IsTerminal() bool {
	switch s.Normalize() {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// OccupyingStatuses son los estados que cuentan para disponibilidad.
func OccupyingStatuses() []Status {
	return []Status{StatusScheduled, StatusPending}
}

// Appointment es a la vez el registro por mascota
// (users/{user}/pets/{pet}/appointments/{id}) y el espejo admin (appointments_admin/{id}).
// Ambos comparten ID; el registro por mascota es el autoritativo.
type Appointment struct {
	ID     string
	UserID string
	PetID  string

	Date string // MM/dd/yyyy
	Time string // etiqueta de turno, ej. "09:00 AM"

	Reason   string
	Notes    string
	Vet      string
	Location string

	Status         Status
	Hidden         bool
	MovedToHistory bool

	CreatedAt time.Time // solo orden/visualización
	UpdatedAt time.Time
}

// Ref identifica el registro por mascota.
type Ref struct {
	UserID string
	PetID  string
	ID     string
}

func (a Appointment) Ref() Ref {
	return Ref{UserID: a.UserID, PetID: a.PetID, ID: a.ID}
}

// Availability es la partición de los turnos de una fecha.
type Availability struct {
	Date      string
	Taken     []string
	Available []string
}
