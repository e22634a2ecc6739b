package history

import "time"

// Entry es el registro de historia clínica creado a partir de un turno completado.
// ID = ID del turno de origen, así la migración es un upsert idempotente.
type Entry struct {
	ID            string
	UserID        string
	PetID         string
	AppointmentID string

	Reason   string
	Notes    string
	Date     string // MM/dd/yyyy
	Time     string // hh:mm a
	Vet      string
	Location string
	Status   string

	OccurredAt time.Time // Date+Time en UTC; cero si no se pudo parsear
	Timestamp  time.Time // momento de la migración
}
