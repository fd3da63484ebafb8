package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

// RecommendationService suggests clubs from a user's declared interests.
type RecommendationService struct {
	users  repository.UserRepository
	clubs  repository.ClubRepository
	logger *slog.Logger
}

func NewRecommendationService(users repository.UserRepository, clubs repository.ClubRepository, logger *slog.Logger) *RecommendationService {
	return &RecommendationService{users: users, clubs: clubs, logger: logger}
}

// Recommend returns clubs whose categories string equals one of the user's
// interests exactly. No interests or no match is an empty list, not an error.
func (s *RecommendationService) Recommend(ctx context.Context, userID string) ([]model.Club, error) {
	interests, err := s.users.ListInterests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: loading interests of %s: %w", userID, err)
	}
	if len(interests) == 0 {
		return []model.Club{}, nil
	}

	clubs, err := s.clubs.ListByCategories(ctx, interests)
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: matching clubs for %s: %w", userID, err)
	}

	s.logger.Debug("recommendations computed",
		slog.String("userID", userID),
		slog.Int("interests", len(interests)),
		slog.Int("clubs", len(clubs)),
	)
	return nonNil(clubs), nil
}
