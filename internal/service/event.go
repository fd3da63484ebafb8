package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/authz"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

const (
	MaxEventTitleLength       = 200
	MaxEventDescriptionLength = 2000
	MaxEventLocationLength    = 200
)

// EventInput is the body of POST /events.
type EventInput struct {
	ClubID      int64     `json:"clubId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"dateTime"`
}

// dateTimeLayouts are tried in order. The zone-less forms are what an HTML
// datetime-local input sends; they are read as UTC.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDateTime parses an event start time in any of dateTimeLayouts.
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.ValidationFailed("dateTime",
		fmt.Sprintf("dateTime %q must look like 2006-01-02T15:04, optionally with seconds and a zone", s))
}

// UnmarshalJSON reads dateTime as a string so ParseDateTime decides the
// format. An empty or missing value stays zero and fails Validate.
func (in *EventInput) UnmarshalJSON(data []byte) error {
	type plain EventInput
	aux := struct {
		*plain
		DateTime *string `json:"dateTime"`
	}{plain: (*plain)(in)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DateTime == nil || strings.TrimSpace(*aux.DateTime) == "" {
		return nil
	}

	t, err := ParseDateTime(strings.TrimSpace(*aux.DateTime))
	if err != nil {
		return err
	}
	in.StartsAt = t
	return nil
}

func (in EventInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ClubID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, MaxEventTitleLength)),
		validation.Field(&in.Description, validation.RuneLength(0, MaxEventDescriptionLength)),
		validation.Field(&in.Location, validation.RuneLength(0, MaxEventLocationLength)),
		validation.Field(&in.StartsAt, validation.Required),
	)
}

// EventService is the event registry. Every read and write is scoped by the
// caller's club memberships.
type EventService struct {
	events repository.EventRepository
	guard  *authz.Guard
	logger *slog.Logger
}

func NewEventService(events repository.EventRepository, guard *authz.Guard, logger *slog.Logger) *EventService {
	return &EventService{events: events, guard: guard, logger: logger}
}

// Create adds an event to a club. The requester must be an Admin of it:
// a non-member gets NotMember, a plain member gets Forbidden.
func (s *EventService) Create(ctx context.Context, requesterID string, in EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)

	if err := validate(in); err != nil {
		return nil, err
	}

	d, err := s.guard.Decide(ctx, in.ClubID, requesterID, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("service/event: authorizing: %w", err)
	}
	switch d.Outcome {
	case authz.Allowed:
	case authz.Forbidden:
		return nil, apperror.Forbidden("only club admins can create events")
	default:
		return nil, d.Err()
	}

	event := &model.Event{
		ClubID:      in.ClubID,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		StartsAt:    in.StartsAt,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("service/event: creating %q: %w", in.Title, err)
	}

	s.logger.Info("event created",
		slog.Int64("eventID", event.ID),
		slog.Int64("clubID", event.ClubID),
		slog.String("by", requesterID),
	)
	return event, nil
}

// Get returns the event if the requester belongs to its club.
func (s *EventService) Get(ctx context.Context, eventID int64, requesterID string) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.RequireMember(ctx, event.ClubID, requesterID); err != nil {
		return nil, err
	}
	return event, nil
}

// ListForUser returns events of every club the requester belongs to.
func (s *EventService) ListForUser(ctx context.Context, requesterID string) ([]model.Event, error) {
	events, err := s.events.ListForMember(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("service/event: listing for %s: %w", requesterID, err)
	}
	return nonNil(events), nil
}

// Search is ListForUser narrowed by a substring of title, description or
// location.
func (s *EventService) Search(ctx context.Context, query, requesterID string) ([]model.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("query", "query parameter is required")
	}

	events, err := s.events.SearchForMember(ctx, requesterID, query)
	if err != nil {
		return nil, fmt.Errorf("service/event: searching %q for %s: %w", query, requesterID, err)
	}
	return nonNil(events), nil
}
