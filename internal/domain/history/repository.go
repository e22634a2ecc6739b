package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Repository interface {
	// Put crea o reemplaza la entrada con el mismo ID.
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, userID, petID, id string) (Entry, error)
	ListByPet(ctx context.Context, userID, petID string, filter ListFilter) ([]Entry, error)
}

// ListFilter filtra por OccurredAt y texto en motivo/notas/veterinario.
type ListFilter struct {
	From  *time.Time
	To    *time.Time
	Query string
	Limit int
}
