package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pet-care-tracker/internal/domain/appointments"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TriggerTime combina fecha y etiqueta de turno en la zona del dispositivo.
func TriggerTime(date, timeLabel string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(date) + " " + strings.TrimSpace(timeLabel)
	t, err := time.ParseInLocation(appointments.DateTimeLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse trigger %q: %w", raw, err)
	}
	return t, nil
}

type Scheduler struct {
	alarms AlarmService
	loc    *time.Location
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewScheduler(alarms AlarmService, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		alarms: alarms,
		loc:    loc,
		log:    log.With().Str("module", "reminders").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Schedule registra exactamente una alarma por llamada. No deduplica.
// Los errores se loguean y no llegan al flujo de reserva.
func (s *Scheduler) Schedule(ctx context.Context, trigger time.Time, p Payload) {
	a := Alarm{
		ID:        s.newID(),
		TriggerAt: trigger,
		Payload:   p,
	}

	if trigger.Before(s.now()) {
		s.log.Warn().
			Str("appointment_id", p.AppointmentID).
			Time("trigger_at", trigger).
			Msg("reminder trigger already passed, host will fire it immediately")
	}

	if err := s.alarms.Register(ctx, a); err != nil {
		s.log.Error().Err(err).
			Str("alarm_id", a.ID).
			Str("appointment_id", p.AppointmentID).
			Msg("reminder schedule failed")
		return
	}

	s.log.Info().
		Str("alarm_id", a.ID).
		Str("appointment_id", p.AppointmentID).
		Time("trigger_at", trigger).
		Msg("reminder scheduled")
}

// Remind implementa appointments.Reminder.
func (s *Scheduler) Remind(ctx context.Context, a appointments.Appointment) {
	trigger, err := TriggerTime(a.Date, a.Time, s.loc)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", a.ID).Msg("reminder not scheduled")
		return
	}
	s.Schedule(ctx, trigger, Payload{
		AppointmentID: a.ID,
		UserID:        a.UserID,
		PetID:         a.PetID,
		Reason:        a.Reason,
	})
}
