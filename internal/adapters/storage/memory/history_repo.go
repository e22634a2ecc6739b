package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"pet-care-tracker/internal/domain/history"
)

type historyRepo struct {
	mu   sync.RWMutex
	byID map[string]history.Entry
}

func NewHistoryRepo() history.Repository {
	return &historyRepo{
		byID: make(map[string]history.Entry),
	}
}

// Put reemplaza si ya existe (upsert por ID de turno).
func (r *historyRepo) Put(ctx context.Context, e history.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		return errors.New("history entry id required")
	}
	r.byID[e.ID] = e
	return nil
}

func (r *historyRepo) Get(ctx context.Context, userID, petID, id string) (history.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok || e.UserID != userID || e.PetID != petID {
		return history.Entry{}, history.ErrNotFound
	}
	return e, nil
}

func (r *historyRepo) ListByPet(ctx context.Context, userID, petID string, filter history.ListFilter) ([]history.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	out := make([]history.Entry, 0)

	for _, e := range r.byID {
		if e.UserID != userID || e.PetID != petID {
			continue
		}

		// Date filters (occurred_at)
		if filter.From != nil && e.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.OccurredAt.After(*filter.To) {
			continue
		}

		if q := strings.TrimSpace(filter.Query); q != "" {
			hay := strings.ToLower(e.Reason + " " + e.Notes + " " + e.Vet)
			if !strings.Contains(hay, strings.ToLower(q)) {
				continue
			}
		}

		out = append(out, e)
	}

	// Más reciente primero
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
