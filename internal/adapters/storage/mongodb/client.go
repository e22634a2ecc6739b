package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Nombres de colecciones: mismas rutas lógicas que el documento remoto.
const (
	collPets         = "pets"
	collAppointments = "appointments"       // users/{user}/pets/{pet}/appointments
	collMirror       = "appointments_admin" // appointments_admin/{id}
	collHistory      = "medical_history"    // users/{user}/pets/{pet}/medicalHistory
	collReservations = "slot_reservations"  // _id = "date|time"
)

// Connect abre el cliente y verifica con ping. close debe llamarse al apagar.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client.Database(database), client.Disconnect, nil
}

// EnsureIndexes crea los índices que usan las consultas de los repos.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	models := map[string][]mongo.IndexModel{
		collPets: {
			{Keys: bson.D{{Key: "ownerUserId", Value: 1}}},
		},
		collAppointments: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "petId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "movedToHistory", Value: 1}}},
		},
		collMirror: {
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "status", Value: 1}}},
		},
		collHistory: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "petId", Value: 1}, {Key: "occurredAt", Value: -1}}},
		},
	}

	for coll, idx := range models {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("indexes %s: %w", coll, err)
		}
	}
	return nil
}
