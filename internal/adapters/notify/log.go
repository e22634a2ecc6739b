package notify

import (
	"context"

	"pet-care-tracker/internal/domain/reminders"

	"github.com/rs/zerolog"
)

// LogNotifier solo escribe la notificación en el log. Es el default en dev.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("module", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, msg reminders.Notification) error {
	n.log.Info().
		Str("user_id", msg.UserID).
		Str("pet_id", msg.PetID).
		Str("appointment_id", msg.AppointmentID).
		Str("title", msg.Title).
		Msg(msg.Body)
	return nil
}
