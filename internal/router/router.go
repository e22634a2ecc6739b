package router

import (
	"net/http"
	"time"

	mem "pet-care-tracker/internal/adapters/storage/memory"
	"pet-care-tracker/internal/domain/appointments"
	"pet-care-tracker/internal/domain/history"
	"pet-care-tracker/internal/domain/pets"
	"pet-care-tracker/internal/domain/reminders"
	"pet-care-tracker/internal/middleware"
	"pet-care-tracker/internal/ports/auth"

	_ "pet-care-tracker/docs"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)
	Logger       zerolog.Logger

	// Repos: los nil caen a in-memory.
	Pets         pets.Repository
	Appointments appointments.Repository
	History      history.Repository

	// Opcionales
	Cache    appointments.AvailabilityCache
	Alarms   reminders.AlarmService
	Notifier reminders.Notifier
	Location *time.Location

	HistoryPollInterval time.Duration
}

// App expone los servicios armados para que cmd los use fuera de HTTP
// (migrador en background, callback de alarmas).
type App struct {
	Handler      http.Handler
	Pets         *pets.Service
	Appointments *appointments.Service
	History      *history.Service
	Migrator     *history.Migrator
	Receiver     *reminders.Receiver
}

func NewRouter(opts Options) http.Handler {
	return NewApp(opts).Handler
}

func NewApp(opts Options) *App {
	log := opts.Logger

	petRepo := opts.Pets
	if petRepo == nil {
		petRepo = mem.NewPetRepo()
	}
	apptRepo := opts.Appointments
	if apptRepo == nil {
		apptRepo = mem.NewAppointmentRepo()
	}
	historyRepo := opts.History
	if historyRepo == nil {
		historyRepo = mem.NewHistoryRepo()
	}

	// Services por módulo
	petsSvc := pets.NewService(petRepo)

	apptOpts := []appointments.Option{appointments.WithLogger(log)}
	if opts.Cache != nil {
		apptOpts = append(apptOpts, appointments.WithCache(opts.Cache))
	}
	if opts.Alarms != nil {
		apptOpts = append(apptOpts, appointments.WithReminder(reminders.NewScheduler(opts.Alarms, opts.Location, log)))
	}
	apptSvc := appointments.NewService(apptRepo, apptOpts...)

	migOpts := []history.MigratorOption{
		history.WithLogger(log),
		history.WithPollInterval(opts.HistoryPollInterval),
		history.WithLocation(opts.Location),
	}
	if w, ok := apptRepo.(appointments.Watcher); ok {
		migOpts = append(migOpts, history.WithWatcher(w))
	}
	historySvc := history.NewService(historyRepo)
	migrator := history.NewMigrator(apptSvc, historyRepo, migOpts...)

	receiver := reminders.NewReceiver(apptSvc, opts.Notifier, log)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recover(log))

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Rutas por módulo
	pets.RegisterRoutes(r, petsSvc)
	appointments.RegisterRoutes(r, apptSvc, petsSvc)
	history.RegisterRoutes(r, historySvc, migrator, petsSvc)

	return &App{
		Handler:      r,
		Pets:         petsSvc,
		Appointments: apptSvc,
		History:      historySvc,
		Migrator:     migrator,
		Receiver:     receiver,
	}
}
