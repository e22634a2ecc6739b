package mongodb

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"pet-care-tracker/internal/domain/history"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type entryDoc struct {
	ID            string     `bson:"_id"`
	UserID        string     `bson:"userId"`
	PetID         string     `bson:"petId"`
	AppointmentID string     `bson:"appointmentId"`
	Reason        string     `bson:"reason"`
	Notes         string     `bson:"notes"`
	Date          string     `bson:"date"`
	Time          string     `bson:"time"`
	Vet           string     `bson:"vet"`
	Location      string     `bson:"location"`
	Status        string     `bson:"status"`
	OccurredAt    *time.Time `bson:"occurredAt,omitempty"`
	Timestamp     time.Time  `bson:"timestamp"`
}

type HistoryRepo struct {
	coll *mongo.Collection
}

func NewHistoryRepo(db *mongo.Database) *HistoryRepo {
	return &HistoryRepo{coll: db.Collection(collHistory)}
}

// Put reemplaza o crea el documento con el id del turno de origen.
func (r *HistoryRepo) Put(ctx context.Context, e history.Entry) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": e.ID},
		toEntryDoc(e),
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *HistoryRepo) Get(ctx context.Context, userID, petID, id string) (history.Entry, error) {
	var d entryDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "userId": userID, "petId": petID}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return history.Entry{}, history.ErrNotFound
		}
		return history.Entry{}, err
	}
	return d.toEntry(), nil
}

func (r *HistoryRepo) ListByPet(ctx context.Context, userID, petID string, filter history.ListFilter) ([]history.Entry, error) {
	q := bson.M{"userId": userID, "petId": petID}

	occurred := bson.M{}
	if filter.From != nil {
		occurred["$gte"] = *filter.From
	}
	if filter.To != nil {
		occurred["$lte"] = *filter.To
	}
	if len(occurred) > 0 {
		q["occurredAt"] = occurred
	}

	if s := strings.TrimSpace(filter.Query); s != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"reason": rx},
			bson.M{"notes": rx},
			bson.M{"vet": rx},
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.coll.Find(ctx, q, options.Find().
		SetSort(bson.D{{Key: "occurredAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}

	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]history.Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEntry())
	}
	return out, nil
}

func toEntryDoc(e history.Entry) entryDoc {
	d := entryDoc{
		ID:            e.ID,
		UserID:        e.UserID,
		PetID:         e.PetID,
		AppointmentID: e.AppointmentID,
		Reason:        e.Reason,
		Notes:         e.Notes,
		Date:          e.Date,
		Time:          e.Time,
		Vet:           e.Vet,
		Location:      e.Location,
		Status:        e.Status,
		Timestamp:     e.Timestamp,
	}
	if !e.OccurredAt.IsZero() {
		t := e.OccurredAt
		d.OccurredAt = &t
	}
	return d
}

func (d entryDoc) toEntry() history.Entry {
	e := history.Entry{
		ID:            d.ID,
		UserID:        d.UserID,
		PetID:         d.PetID,
		AppointmentID: d.AppointmentID,
		Reason:        d.Reason,
		Notes:         d.Notes,
		Date:          d.Date,
		Time:          d.Time,
		Vet:           d.Vet,
		Location:      d.Location,
		Status:        d.Status,
		Timestamp:     d.Timestamp,
	}
	if d.OccurredAt != nil {
		e.OccurredAt = *d.OccurredAt
	}
	return e
}
