package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/authz"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

const (
	MaxClubNameLength        = 100
	MaxClubDescriptionLength = 2000
	MaxCategoriesLength      = 200
	MaxListLimit             = 100
)

// ClubInput is the body of POST /clubs.
type ClubInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Categories  string `json:"categories"`
}

func (in ClubInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, MaxClubNameLength)),
		validation.Field(&in.Description, validation.RuneLength(0, MaxClubDescriptionLength)),
		validation.Field(&in.Categories, validation.RuneLength(0, MaxCategoriesLength)),
	)
}

// ClubService is the club directory: creating, browsing and joining clubs.
type ClubService struct {
	clubs   repository.ClubRepository
	members *MembershipService
	guard   *authz.Guard
	logger  *slog.Logger
}

func NewClubService(clubs repository.ClubRepository, members *MembershipService, guard *authz.Guard, logger *slog.Logger) *ClubService {
	return &ClubService{clubs: clubs, members: members, guard: guard, logger: logger}
}

// Create stores a new club with the founder as its first Admin. Both rows
// are written in one transaction by the repository.
func (s *ClubService) Create(ctx context.Context, founderID string, in ClubInput) (*model.Club, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Categories = strings.TrimSpace(in.Categories)

	if err := validate(in); err != nil {
		return nil, err
	}

	club := &model.Club{
		Name:        in.Name,
		Description: in.Description,
		Categories:  in.Categories,
	}
	if err := s.clubs.CreateWithFounder(ctx, club, founderID); err != nil {
		return nil, fmt.Errorf("service/club: creating %q: %w", in.Name, err)
	}

	s.logger.Info("club created",
		slog.Int64("clubID", club.ID),
		slog.String("name", club.Name),
		slog.String("founder", founderID),
	)
	return club, nil
}

func (s *ClubService) Get(ctx context.Context, clubID int64) (*model.Club, error) {
	return s.clubs.GetByID(ctx, clubID)
}

// List returns clubs. A zero limit lists everything; larger limits are
// capped at MaxListLimit.
func (s *ClubService) List(ctx context.Context, opts repository.ListOptions) ([]model.Club, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("limit", "limit and offset must not be negative")
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}

	clubs, err := s.clubs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/club: listing: %w", err)
	}
	return nonNil(clubs), nil
}

// Search matches name, description or categories. A blank query is a
// validation error rather than "match everything".
func (s *ClubService) Search(ctx context.Context, query string) ([]model.Club, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("query", "query parameter is required")
	}

	clubs, err := s.clubs.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("service/club: searching %q: %w", query, err)
	}
	return nonNil(clubs), nil
}

// Join adds the user to the club as a Member and returns the updated club.
func (s *ClubService) Join(ctx context.Context, clubID int64, userID string) (*model.Club, error) {
	exists, err := s.clubs.Exists(ctx, clubID)
	if err != nil {
		return nil, fmt.Errorf("service/club: checking club %d: %w", clubID, err)
	}
	if !exists {
		return nil, apperror.NotFound("club", strconv.FormatInt(clubID, 10))
	}

	if err := s.members.Add(ctx, clubID, userID, model.RoleMember); err != nil {
		return nil, err
	}
	return s.clubs.GetByID(ctx, clubID)
}

// Members lists the roster. Only members of the club may see it.
func (s *ClubService) Members(ctx context.Context, clubID int64, requesterID string) ([]model.Member, error) {
	if err := s.guard.RequireMember(ctx, clubID, requesterID); err != nil {
		return nil, err
	}
	return s.members.Members(ctx, clubID)
}

// Promote makes target an Admin and returns the updated roster.
func (s *ClubService) Promote(ctx context.Context, clubID int64, targetID, requesterID string) ([]model.Member, error) {
	if err := s.members.Promote(ctx, clubID, targetID, requesterID); err != nil {
		return nil, err
	}
	return s.members.Members(ctx, clubID)
}
