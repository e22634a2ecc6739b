package mongodb

import (
	"context"
	"errors"
	"time"

	"pet-care-tracker/internal/domain/pets"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type petDoc struct {
	ID          string     `bson:"_id"`
	OwnerUserID string     `bson:"ownerUserId"`
	Name        string     `bson:"name"`
	Species     string     `bson:"species"`
	Breed       string     `bson:"breed"`
	Sex         string     `bson:"sex"`
	BirthDate   *time.Time `bson:"birthDate,omitempty"`
	WeightKg    float64    `bson:"weightKg"`
	Notes       string     `bson:"notes"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

type PetsRepo struct {
	coll *mongo.Collection
}

func NewPetsRepo(db *mongo.Database) *PetsRepo {
	return &PetsRepo{coll: db.Collection(collPets)}
}

func (r *PetsRepo) Create(ctx context.Context, p pets.Pet) error {
	_, err := r.coll.InsertOne(ctx, toPetDoc(p))
	return err
}

func (r *PetsRepo) Update(ctx context.Context, p pets.Pet) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, toPetDoc(p))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return pets.ErrNotFound
	}
	return nil
}

func (r *PetsRepo) GetByID(ctx context.Context, id string) (pets.Pet, error) {
	var d petDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return pets.Pet{}, pets.ErrNotFound
		}
		return pets.Pet{}, err
	}
	return d.toPet(), nil
}

func (r *PetsRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]pets.Pet, error) {
	cur, err := r.coll.Find(ctx,
		bson.M{"ownerUserId": ownerUserID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}

	var docs []petDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]pets.Pet, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toPet())
	}
	return out, nil
}

func toPetDoc(p pets.Pet) petDoc {
	return petDoc{
		ID:          p.ID,
		OwnerUserID: p.OwnerUserID,
		Name:        p.Name,
		Species:     string(p.Species),
		Breed:       p.Breed,
		Sex:         string(p.Sex),
		BirthDate:   p.BirthDate,
		WeightKg:    p.WeightKg,
		Notes:       p.Notes,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (d petDoc) toPet() pets.Pet {
	return pets.Pet{
		ID:          d.ID,
		OwnerUserID: d.OwnerUserID,
		Name:        d.Name,
		Species:     pets.Species(d.Species),
		Breed:       d.Breed,
		Sex:         pets.Sex(d.Sex),
		BirthDate:   d.BirthDate,
		WeightKg:    d.WeightKg,
		Notes:       d.Notes,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
