package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/aggregator"
	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/membership"
	"github.com/google/uuid"
)

// CreateSquadInput holds the caller supplied fields of a new squad
type CreateSquadInput struct {
	Name           string `json:"name" validate:"required,max=64"`
	Slug           string `json:"slug" validate:"required,slug"`
	Description    string `json:"description" validate:"max=512"`
	Image          string `json:"image" validate:"omitempty,url"`
	ImageStorageID string `json:"image_storage_id"`
	Open           bool   `json:"open"`
}

// UpdateSquadInput is a partial metadata edit; nil fields are left unchanged
type UpdateSquadInput struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=64"`
	Slug           *string `json:"slug" validate:"omitempty,slug"`
	Description    *string `json:"description" validate:"omitempty,max=512"`
	Image          *string `json:"image" validate:"omitempty,url"`
	ImageStorageID *string `json:"image_storage_id"`
	Open           *bool   `json:"open"`
	Active         *bool   `json:"active"`
	Featured       *bool   `json:"featured"`
}

// SquadService manages squads and their membership
type SquadService struct {
	store  Store
	index  Index
	config config.SquadsConfig
	limits config.LeaderboardConfig
	retry  retrier
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewSquadService creates a new squad service. index may be nil.
func NewSquadService(store Store, index Index, cfg config.SquadsConfig, limits config.LeaderboardConfig, logger *slog.Logger) *SquadService {
	return &SquadService{
		store:  store,
		index:  index,
		config: cfg,
		limits: limits,
		retry:  newRetrier(cfg, logger),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateSquad creates a squad owned by ownerID. The owner must not already be in a squad.
func (s *SquadService) CreateSquad(ctx context.Context, ownerID string, in CreateSquadInput) (domain.Squad, error) {
	if ownerID == "" {
		return domain.Squad{}, domain.ErrMissingIdentity
	}

	user, err := s.store.GetUser(ctx, ownerID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return domain.Squad{}, fmt.Errorf("getting user: %w", err)
	}
	if user.SquadID != "" {
		return domain.Squad{}, fmt.Errorf("%w: user %s", domain.ErrAlreadyInSquad, ownerID)
	}

	image := in.Image
	storageID := in.ImageStorageID
	if image == "" {
		image = s.config.DefaultImage
		storageID = ""
	}

	squad, err := membership.NewSquad(membership.NewSquadParams{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Name:           in.Name,
		Slug:           strings.ToLower(in.Slug),
		Description:    in.Description,
		Image:          image,
		ImageStorageID: storageID,
		Open:           in.Open,
	}, s.now())
	if err != nil {
		return domain.Squad{}, err
	}

	created, err := s.store.CreateSquad(ctx, squad)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("creating squad: %w", err)
	}
	indexScore(ctx, s.index, s.logger, created)

	s.logger.Info("squad created", "squad_id", created.ID, "slug", created.Slug, "owner_id", ownerID)
	return created, nil
}

// UpdateSquad applies a metadata edit. Only the owner may edit a squad.
func (s *SquadService) UpdateSquad(ctx context.Context, actorID, squadID string, in UpdateSquadInput) (domain.Squad, error) {
	if actorID == "" {
		return domain.Squad{}, domain.ErrMissingIdentity
	}

	var saved domain.Squad
	err := s.retry.do(ctx, squadID, func() error {
		squad, err := s.store.GetSquad(ctx, squadID)
		if err != nil {
			return err
		}
		if squad.OwnerID != actorID {
			return domain.ErrNotSquadOwner
		}

		next := squad.Clone()
		if err := applyUpdate(&next, in, s.config.DefaultImage); err != nil {
			return err
		}
		if next.Slug != squad.Slug {
			if err := s.checkSlugFree(ctx, next.Slug, squad.ID); err != nil {
				return err
			}
		}
		next.UpdatedAt = s.now().UTC()

		saved, err = s.store.SaveSquad(ctx, next)
		return err
	})
	if err != nil {
		return domain.Squad{}, err
	}

	s.logger.Info("squad updated", "squad_id", squadID, "actor_id", actorID)
	return saved, nil
}

// DeleteSquadImage resets the squad image to the default placeholder.
func (s *SquadService) DeleteSquadImage(ctx context.Context, actorID, squadID string) (domain.Squad, error) {
	image := s.config.DefaultImage
	empty := ""
	return s.UpdateSquad(ctx, actorID, squadID, UpdateSquadInput{Image: &image, ImageStorageID: &empty})
}

// JoinSquad adds userID to the squad roster and points the user at the squad.
func (s *SquadService) JoinSquad(ctx context.Context, squadID, userID string) (domain.Squad, error) {
	if userID == "" {
		return domain.Squad{}, domain.ErrMissingIdentity
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return domain.Squad{}, fmt.Errorf("getting user: %w", err)
	}
	if user.SquadID != "" {
		return domain.Squad{}, fmt.Errorf("%w: user %s is in squad %s", domain.ErrAlreadyInSquad, userID, user.SquadID)
	}

	var saved domain.Squad
	err = s.retry.do(ctx, squadID, func() error {
		squad, err := s.store.GetSquad(ctx, squadID)
		if err != nil {
			return err
		}
		next, err := membership.AddMember(squad, userID, s.now())
		if err != nil {
			return err
		}
		saved, err = s.store.JoinSquad(ctx, next, userID)
		return err
	})
	if err != nil {
		return domain.Squad{}, err
	}

	s.logger.Info("user joined squad", "squad_id", squadID, "user_id", userID)
	return saved, nil
}

// LeaveSquad removes userID from the squad and clears the user's squad reference.
// The squad keeps the departed member's contribution to its stats.
func (s *SquadService) LeaveSquad(ctx context.Context, squadID, userID string) (domain.Squad, error) {
	if userID == "" {
		return domain.Squad{}, domain.ErrMissingIdentity
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Squad{}, fmt.Errorf("%w: user %s has no squad", domain.ErrNotAMember, userID)
		}
		return domain.Squad{}, fmt.Errorf("getting user: %w", err)
	}
	if user.SquadID != squadID {
		return domain.Squad{}, fmt.Errorf("%w: user %s in squad %s", domain.ErrNotAMember, userID, squadID)
	}

	var saved domain.Squad
	err = s.retry.do(ctx, squadID, func() error {
		squad, err := s.store.GetSquad(ctx, squadID)
		if err != nil {
			return err
		}
		next, err := membership.RemoveMember(squad, userID, s.now())
		if err != nil {
			return err
		}
		saved, err = s.store.LeaveSquad(ctx, next, userID)
		return err
	})
	if err != nil {
		return domain.Squad{}, err
	}

	s.logger.Info("user left squad",
		"squad_id", squadID,
		"user_id", userID,
		"owner_id", saved.OwnerID,
		"active", saved.Active,
	)
	return saved, nil
}

// GetSquad returns a squad by id
func (s *SquadService) GetSquad(ctx context.Context, squadID string) (domain.Squad, error) {
	return s.store.GetSquad(ctx, squadID)
}

// GetSquadBySlug returns a squad by slug
func (s *SquadService) GetSquadBySlug(ctx context.Context, slug string) (domain.Squad, error) {
	return s.store.GetSquadBySlug(ctx, strings.ToLower(slug))
}

// GetUserSquad returns the squad userID belongs to, or domain.ErrSquadNotFound.
func (s *SquadService) GetUserSquad(ctx context.Context, userID string) (domain.Squad, error) {
	if userID == "" {
		return domain.Squad{}, domain.ErrMissingIdentity
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Squad{}, domain.ErrSquadNotFound
		}
		return domain.Squad{}, err
	}
	if user.SquadID == "" {
		return domain.Squad{}, domain.ErrSquadNotFound
	}
	return s.store.GetSquad(ctx, user.SquadID)
}

// ListSquads pages through all squads, newest first.
func (s *SquadService) ListSquads(ctx context.Context, limit, offset int) ([]domain.Squad, error) {
	limit = clampLimit(limit, s.limits.DefaultLimit, s.limits.MaxLimit)
	if offset < 0 {
		offset = 0
	}
	return s.store.ListSquads(ctx, limit, offset)
}

// SearchSquads matches active squads whose name contains query, case-insensitively.
func (s *SquadService) SearchSquads(ctx context.Context, query string) ([]domain.Squad, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Squad{}, nil
	}
	return s.store.SearchSquads(ctx, query, s.limits.SearchLimit)
}

// MonthlyHistory returns the squad's monthly chart, oldest month first.
func (s *SquadService) MonthlyHistory(ctx context.Context, squadID string) ([]domain.MonthlyPoint, error) {
	squad, err := s.store.GetSquad(ctx, squadID)
	if err != nil {
		return nil, err
	}
	return aggregator.MonthlySeries(squad.MonthlyStats, s.config.HistoryMonths), nil
}

func (s *SquadService) checkSlugFree(ctx context.Context, slug, squadID string) error {
	other, err := s.store.GetSquadBySlug(ctx, slug)
	switch {
	case errors.Is(err, domain.ErrSquadNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("checking slug: %w", err)
	case other.ID != squadID:
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSlug, slug)
	}
	return nil
}

func applyUpdate(squad *domain.Squad, in UpdateSquadInput, defaultImage string) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return fmt.Errorf("%w: name is required", domain.ErrInvalidSquad)
		}
		squad.Name = name
	}
	if in.Slug != nil {
		slug := strings.ToLower(*in.Slug)
		if !membership.ValidSlug(slug) {
			return fmt.Errorf("%w: slug %q", domain.ErrInvalidSquad, slug)
		}
		squad.Slug = slug
	}
	if in.Description != nil {
		squad.Description = *in.Description
	}
	if in.Image != nil {
		squad.Image = *in.Image
	}
	if in.ImageStorageID != nil {
		squad.ImageStorageID = *in.ImageStorageID
	}
	if squad.Image == "" {
		squad.Image = defaultImage
		squad.ImageStorageID = ""
	}
	if in.Open != nil {
		squad.Open = *in.Open
	}
	if in.Active != nil {
		squad.Active = *in.Active
	}
	if in.Featured != nil {
		squad.Featured = *in.Featured
	}
	return nil
}

func clampLimit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}
