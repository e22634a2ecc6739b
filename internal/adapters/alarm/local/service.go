package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"pet-care-tracker/internal/domain/reminders"

	"github.com/rs/zerolog"
)

// Handler es el callback del host al dispararse una alarma.
type Handler func(ctx context.Context, p reminders.Payload) error

var ErrClosed = errors.New("alarm service closed")

// Service es el servicio de alarmas del host: timers de un solo disparo en
// proceso, persistidos en Store. Implementa reminders.AlarmService.
type Service struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler Handler
	store   Store
	closed  bool

	log zerolog.Logger
	now func() time.Time
}

// NewService acepta store nil (sin persistencia).
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		timers: make(map[string]*time.Timer),
		store:  store,
		log:    log.With().Str("module", "alarm").Logger(),
		now:    time.Now,
	}
}

func (s *Service) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Register persiste y arma la alarma. Un TriggerAt pasado dispara enseguida.
func (s *Service) Register(ctx context.Context, a reminders.Alarm) error {
	if s.store != nil {
		if err := s.store.Save(ctx, a); err != nil {
			return err
		}
	}
	return s.arm(a)
}

// Restore rearma las alarmas guardadas. Se llama una vez al arrancar.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	items, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range items {
		if err := s.arm(a); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// Pending devuelve cuántas alarmas están armadas.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close detiene los timers; lo persistido queda para el próximo Restore.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) arm(a reminders.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	delay := a.TriggerAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	if old, ok := s.timers[a.ID]; ok {
		old.Stop()
	}
	s.timers[a.ID] = time.AfterFunc(delay, func() { s.fire(a) })
	return nil
}

func (s *Service) fire(a reminders.Alarm) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, a.ID)
	h := s.handler
	s.mu.Unlock()

	ctx := context.Background()
	log := s.log.With().Str("alarm_id", a.ID).Str("appointment_id", a.Payload.AppointmentID).Logger()

	if h == nil {
		log.Warn().Msg("alarm fired without handler")
	} else if err := h(ctx, a.Payload); err != nil {
		log.Error().Err(err).Msg("alarm handler failed")
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, a.ID); err != nil {
			log.Error().Err(err).Msg("fired alarm not removed from store")
		}
	}
}
