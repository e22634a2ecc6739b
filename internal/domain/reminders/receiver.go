package reminders

import (
	"context"
	"errors"
	"fmt"

	"pet-care-tracker/internal/domain/appointments"

	"github.com/rs/zerolog"
)

// StatusMarker es la parte de appointments.Service que usa el receptor.
type StatusMarker interface {
	MarkPending(ctx context.Context, ref appointments.Ref) (appointments.Appointment, error)
}

// Receiver atiende el callback del host cuando se dispara una alarma.
type Receiver struct {
	appts    StatusMarker
	notifier Notifier
	log      zerolog.Logger
}

func NewReceiver(appts StatusMarker, notifier Notifier, log zerolog.Logger) *Receiver {
	return &Receiver{
		appts:    appts,
		notifier: notifier,
		log:      log.With().Str("module", "reminders").Logger(),
	}
}

// OnFire marca el turno como Pending y notifica.
// Un turno ya Completed/Cancelled no se toca ni se notifica.
func (r *Receiver) OnFire(ctx context.Context, p Payload) error {
	ref := appointments.Ref{UserID: p.UserID, PetID: p.PetID, ID: p.AppointmentID}

	a, err := r.appts.MarkPending(ctx, ref)
	switch {
	case errors.Is(err, appointments.ErrBadState):
		r.log.Info().Str("appointment_id", p.AppointmentID).Msg("reminder fired for closed appointment, skipped")
		return nil
	case errors.Is(err, appointments.ErrNotFound):
		r.log.Warn().Str("appointment_id", p.AppointmentID).Msg("reminder fired for missing appointment, skipped")
		return nil
	case err != nil:
		return fmt.Errorf("mark pending: %w", err)
	}

	n := Notification{
		UserID:        a.UserID,
		PetID:         a.PetID,
		AppointmentID: a.ID,
		Title:         "Appointment Reminder",
		Body:          fmt.Sprintf("%s at %s %s", a.Reason, a.Date, a.Time),
	}
	if r.notifier == nil {
		return nil
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
