package main

import (
	"context"
	"fmt"
	"time"

	"pet-care-tracker/internal/adapters/notify"
	"pet-care-tracker/internal/adapters/storage/mongodb"
	"pet-care-tracker/internal/adapters/storage/postgres"
	"pet-care-tracker/internal/config"
	"pet-care-tracker/internal/domain/reminders"
	"pet-care-tracker/internal/router"

	"github.com/rs/zerolog"
)

// storage completa los repos de opts según STORAGE_BACKEND.
// El close devuelto libera conexiones; nunca es nil.
func storage(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts *router.Options) (func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		opts.Pets = postgres.NewPetsRepo(db)
		opts.Appointments = postgres.NewAppointmentsRepo(db)
		opts.History = postgres.NewHistoryRepo(db)
		log.Info().Msg("storage: postgres")
		return func() { _ = db.Close() }, nil

	case config.BackendMongo:
		db, disconnect, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = disconnect(context.Background())
			return nil, err
		}
		opts.Pets = mongodb.NewPetsRepo(db)
		opts.Appointments = mongodb.NewAppointmentsRepo(db, log)
		opts.History = mongodb.NewHistoryRepo(db)
		log.Info().Str("database", cfg.MongoDatabase).Msg("storage: mongo")
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = disconnect(ctx)
		}, nil

	default:
		log.Warn().Msg("storage: memory, data is lost on restart")
		return func() {}, nil
	}
}

func notifier(cfg *config.Config, log zerolog.Logger) (reminders.Notifier, func(), error) {
	logN := notify.NewLogNotifier(log)

	switch cfg.Notifier {
	case config.NotifierRabbitMQ:
		rn, err := notify.NewRabbitNotifier(cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
		if err != nil {
			return nil, nil, err
		}
		return notify.Multi{logN, rn}, func() { _ = rn.Close() }, nil

	case config.NotifierPush:
		pn, err := notify.NewPushNotifier(cfg.PushGatewayURL, "", cfg.PushAPIKey, 0)
		if err != nil {
			return nil, nil, err
		}
		return notify.Multi{logN, pn}, func() {}, nil

	default:
		return logN, func() {}, nil
	}
}
