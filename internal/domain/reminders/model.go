package reminders

import (
	"context"
	"time"
)

// Payload viaja con la alarma y vuelve en el callback del host.
type Payload struct {
	AppointmentID string `json:"appointment_id"`
	UserID        string `json:"user_id"`
	PetID         string `json:"pet_id"`
	Reason        string `json:"reason"`
}

// Alarm es un disparo único a hora exacta.
type Alarm struct {
	ID        string
	TriggerAt time.Time
	Payload   Payload
}

type Notification struct {
	UserID        string `json:"user_id"`
	PetID         string `json:"pet_id"`
	AppointmentID string `json:"appointment_id"`
	Title         string `json:"title"`
	Body          string `json:"body"`
}

// AlarmService es el servicio de alarmas del host.
// Una alarma con TriggerAt en el pasado se dispara de inmediato.
type AlarmService interface {
	Register(ctx context.Context, a Alarm) error
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
