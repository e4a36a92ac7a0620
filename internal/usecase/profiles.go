package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// ProfileService creates and edits profiles. The session engine only reads them.
type ProfileService struct {
	repo   domain.ProfileRepository
	clock  domain.Clock
	logger *zap.Logger
}

// NewProfileService creates a profile service.
func NewProfileService(repo domain.ProfileRepository, clock domain.Clock, logger *zap.Logger) *ProfileService {
	return &ProfileService{repo: repo, clock: clock, logger: logger}
}

// Create assigns an id and timestamps, fills defaults and saves p.
func (s *ProfileService) Create(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	p = p.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.StrategyID == "" {
		p.StrategyID = domain.StrategyManual
	}
	if p.BreakMinutes == 0 {
		p.BreakMinutes = domain.DefaultBreakMinutes
	}
	now := s.clock.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile created",
		zap.String("profile", p.ID),
		zap.String("name", p.Name),
		zap.String("strategy", p.StrategyID))
	return p, nil
}

// Update applies fn to a copy of the stored profile and saves the result.
func (s *ProfileService) Update(ctx context.Context, id string, fn func(p *domain.Profile) error) (*domain.Profile, error) {
	current, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	p := current.Clone()
	if err := fn(p); err != nil {
		return nil, err
	}
	p.ID = current.ID
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddToken registers a physical token on a profile.
func (s *ProfileService) AddToken(ctx context.Context, profileID string, t domain.PhysicalToken) (*domain.Profile, error) {
	return s.Update(ctx, profileID, func(p *domain.Profile) error {
		p.Tokens = append(p.Tokens, t)
		return nil
	})
}

// RemoveToken unregisters a token. Unknown ids are a NotFound error.
func (s *ProfileService) RemoveToken(ctx context.Context, profileID, tokenID string) (*domain.Profile, error) {
	return s.Update(ctx, profileID, func(p *domain.Profile) error {
		for i, t := range p.Tokens {
			if t.TokenID == tokenID {
				p.Tokens = append(p.Tokens[:i], p.Tokens[i+1:]...)
				return nil
			}
		}
		return apperrors.Errorf(apperrors.KindNotFound, "token %q not registered", tokenID)
	})
}

// Get returns a profile by id.
func (s *ProfileService) Get(ctx context.Context, id string) (*domain.Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// List returns all profiles.
func (s *ProfileService) List(ctx context.Context) ([]*domain.Profile, error) {
	return s.repo.ListProfiles(ctx)
}
