package history

import (
	"context"
	"errors"
	"strings"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListByPet(ctx context.Context, userID, petID string, filter ListFilter) ([]Entry, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(petID) == "" {
		return nil, ErrInvalidInput
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, ErrInvalidInput
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLimit
	case filter.Limit > maxLimit:
		filter.Limit = maxLimit
	}
	filter.Query = strings.TrimSpace(filter.Query)
	return s.repo.ListByPet(ctx, userID, petID, filter)
}
