package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRepo struct {
	*testRepo
	lastFilter ListFilter
}

func (r *captureRepo) ListByPet(ctx context.Context, userID, petID string, f ListFilter) ([]Entry, error) {
	r.lastFilter = f
	return r.testRepo.ListByPet(ctx, userID, petID, f)
}

func TestListByPet_Validation(t *testing.T) {
	svc := NewService(newTestRepo())
	ctx := context.Background()

	_, err := svc.ListByPet(ctx, "", "rex", ListFilter{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	from := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err = svc.ListByPet(ctx, "alice", "rex", ListFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListByPet_LimitDefaults(t *testing.T) {
	repo := &captureRepo{testRepo: newTestRepo()}
	svc := NewService(repo)

	_, err := svc.ListByPet(context.Background(), "alice", "rex", ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, repo.lastFilter.Limit)

	_, err = svc.ListByPet(context.Background(), "alice", "rex", ListFilter{Limit: 5000, Query: "  vacuna "})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, repo.lastFilter.Limit)
	assert.Equal(t, "vacuna", repo.lastFilter.Query)
}
