package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pet-care-tracker/internal/domain/appointments"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type appointmentDoc struct {
	ID             string    `bson:"_id"`
	UserID         string    `bson:"userId"`
	PetID          string    `bson:"petId"`
	Date           string    `bson:"date"`
	Time           string    `bson:"time"`
	Reason         string    `bson:"reason"`
	Notes          string    `bson:"notes"`
	Vet            string    `bson:"vet"`
	Location       string    `bson:"location"`
	Status         string    `bson:"status"`
	Hidden         bool      `bson:"hidden"`
	MovedToHistory bool      `bson:"movedToHistory"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

// reservationDoc ocupa (date, time) mientras el turno esté Scheduled o Pending.
type reservationDoc struct {
	ID            string    `bson:"_id"`
	AppointmentID string    `bson:"appointmentId"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// AppointmentsRepo implementa appointments.Repository, AtomicBooker y Watcher.
type AppointmentsRepo struct {
	perPet       *mongo.Collection
	mirror       *mongo.Collection
	reservations *mongo.Collection
	log          zerolog.Logger
}

func NewAppointmentsRepo(db *mongo.Database, log zerolog.Logger) *AppointmentsRepo {
	return &AppointmentsRepo{
		perPet:       db.Collection(collAppointments),
		mirror:       db.Collection(collMirror),
		reservations: db.Collection(collReservations),
		log:          log.With().Str("module", "mongodb").Logger(),
	}
}

func reservationKey(date, slot string) string {
	return date + "|" + slot
}

func (r *AppointmentsRepo) CreateForPet(ctx context.Context, a appointments.Appointment) error {
	_, err := r.perPet.InsertOne(ctx, toAppointmentDoc(a))
	return err
}

func (r *AppointmentsRepo) CreateMirror(ctx context.Context, a appointments.Appointment) error {
	_, err := r.mirror.InsertOne(ctx, toAppointmentDoc(a))
	return err
}

// BookAtomic reserva (date, time) con un insert sobre _id único y después
// escribe espejo y registro por mascota. Si alguna escritura falla se deshace
// lo anterior para no dejar el turno bloqueado.
func (r *AppointmentsRepo) BookAtomic(ctx context.Context, a appointments.Appointment) error {
	key := reservationKey(a.Date, a.Time)

	_, err := r.reservations.InsertOne(ctx, reservationDoc{
		ID:            key,
		AppointmentID: a.ID,
		CreatedAt:     a.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", key, appointments.ErrSlotTaken)
		}
		return err
	}

	if err := r.CreateMirror(ctx, a); err != nil {
		r.release(ctx, key, a.ID)
		return err
	}
	if err := r.CreateForPet(ctx, a); err != nil {
		if _, derr := r.mirror.DeleteOne(ctx, bson.M{"_id": a.ID}); derr != nil {
			r.log.Error().Err(derr).Str("appointment_id", a.ID).Msg("mirror compensation failed")
		}
		r.release(ctx, key, a.ID)
		return err
	}
	return nil
}

func (r *AppointmentsRepo) release(ctx context.Context, key, appointmentID string) {
	_, err := r.reservations.DeleteOne(ctx, bson.M{"_id": key, "appointmentId": appointmentID})
	if err != nil {
		r.log.Error().Err(err).Str("reservation", key).Msg("slot reservation release failed")
	}
}

func (r *AppointmentsRepo) GetForPet(ctx context.Context, ref appointments.Ref) (appointments.Appointment, error) {
	var d appointmentDoc
	err := r.perPet.FindOne(ctx, bson.M{"_id": ref.ID, "userId": ref.UserID, "petId": ref.PetID}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return appointments.Appointment{}, appointments.ErrNotFound
		}
		return appointments.Appointment{}, err
	}
	return d.toAppointment(), nil
}

func (r *AppointmentsRepo) GetMirror(ctx context.Context, id string) (appointments.Appointment, error) {
	var d appointmentDoc
	if err := r.mirror.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return appointments.Appointment{}, appointments.ErrNotFound
		}
		return appointments.Appointment{}, err
	}
	return d.toAppointment(), nil
}

func (r *AppointmentsRepo) UpdateForPet(ctx context.Context, a appointments.Appointment) error {
	res, err := r.perPet.ReplaceOne(ctx,
		bson.M{"_id": a.ID, "userId": a.UserID, "petId": a.PetID},
		toAppointmentDoc(a),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

// UpdateMirror libera la reserva cuando el turno deja de ocupar el horario.
func (r *AppointmentsRepo) UpdateMirror(ctx context.Context, a appointments.Appointment) error {
	res, err := r.mirror.ReplaceOne(ctx, bson.M{"_id": a.ID}, toAppointmentDoc(a))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return appointments.ErrNotFound
	}
	if !a.Status.Occupies() {
		r.release(ctx, reservationKey(a.Date, a.Time), a.ID)
	}
	return nil
}

func (r *AppointmentsRepo) ListForPet(ctx context.Context, userID, petID string) ([]appointments.Appointment, error) {
	return r.find(ctx, r.perPet,
		bson.M{"userId": userID, "petId": petID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
}

func (r *AppointmentsRepo) ListMirror(ctx context.Context, filter appointments.MirrorFilter) ([]appointments.Appointment, error) {
	q := bson.M{}
	if filter.Date != "" {
		q["date"] = filter.Date
	}
	if len(filter.Statuses) > 0 {
		in := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			in = append(in, string(s.Normalize()))
		}
		q["status"] = bson.M{"$in": in}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, r.mirror, q, opts)
}

func (r *AppointmentsRepo) ListAwaitingMigration(ctx context.Context) ([]appointments.Appointment, error) {
	return r.find(ctx, r.perPet,
		bson.M{"status": string(appointments.StatusCompleted), "movedToHistory": false},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
}

func (r *AppointmentsRepo) ListMigrated(ctx context.Context) ([]appointments.Appointment, error) {
	return r.find(ctx, r.perPet,
		bson.M{"status": string(appointments.StatusCompleted), "movedToHistory": true},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
}

// WatchChanges abre un change stream sobre toda la colección por mascota y
// emite la Ref de cada documento insertado o actualizado. Los borrados se ignoran.
func (r *AppointmentsRepo) WatchChanges(ctx context.Context) (<-chan appointments.Ref, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
		}}},
	}
	stream, err := r.perPet.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch appointments: %w", err)
	}

	out := make(chan appointments.Ref, 16)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev struct {
				FullDocument *appointmentDoc `bson:"fullDocument"`
			}
			if err := stream.Decode(&ev); err != nil {
				r.log.Warn().Err(err).Msg("decode change event")
				continue
			}
			if ev.FullDocument == nil {
				continue
			}
			ref := appointments.Ref{UserID: ev.FullDocument.UserID, PetID: ev.FullDocument.PetID, ID: ev.FullDocument.ID}
			select {
			case out <- ref:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.log.Warn().Err(err).Msg("appointments change stream ended")
		}
	}()

	return out, nil
}

// WatchPet abre un change stream sobre los turnos de la mascota y emite el
// snapshot completo después de cada cambio. Requiere replica set; si el
// servidor no lo soporta devuelve error y el migrador cae a polling.
func (r *AppointmentsRepo) WatchPet(ctx context.Context, userID, petID string) (<-chan []appointments.Appointment, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "fullDocument.userId", Value: userID},
			{Key: "fullDocument.petId", Value: petID},
		}}},
	}
	stream, err := r.perPet.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch appointments: %w", err)
	}

	out := make(chan []appointments.Appointment, 1)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		if !r.emit(ctx, out, userID, petID) {
			return
		}
		for stream.Next(ctx) {
			if !r.emit(ctx, out, userID, petID) {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.log.Warn().Err(err).Str("pet_id", petID).Msg("appointments change stream ended")
		}
	}()

	return out, nil
}

func (r *AppointmentsRepo) emit(ctx context.Context, out chan<- []appointments.Appointment, userID, petID string) bool {
	snap, err := r.ListForPet(ctx, userID, petID)
	if err != nil {
		r.log.Warn().Err(err).Str("pet_id", petID).Msg("appointments snapshot failed")
		return ctx.Err() == nil
	}
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *AppointmentsRepo) find(ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]appointments.Appointment, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []appointmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]appointments.Appointment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAppointment())
	}
	return out, nil
}

func toAppointmentDoc(a appointments.Appointment) appointmentDoc {
	return appointmentDoc{
		ID:             a.ID,
		UserID:         a.UserID,
		PetID:          a.PetID,
		Date:           a.Date,
		Time:           a.Time,
		Reason:         a.Reason,
		Notes:          a.Notes,
		Vet:            a.Vet,
		Location:       a.Location,
		Status:         string(a.Status.Normalize()),
		Hidden:         a.Hidden,
		MovedToHistory: a.MovedToHistory,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (d appointmentDoc) toAppointment() appointments.Appointment {
	return appointments.Appointment{
		ID:             d.ID,
		UserID:         d.UserID,
		PetID:          d.PetID,
		Date:           d.Date,
		Time:           d.Time,
		Reason:         d.Reason,
		Notes:          d.Notes,
		Vet:            d.Vet,
		Location:       d.Location,
		Status:         appointments.Status(d.Status).Normalize(),
		Hidden:         d.Hidden,
		MovedToHistory: d.MovedToHistory,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
