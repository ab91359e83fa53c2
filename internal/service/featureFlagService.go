package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zerotocryptodev/gateway/internal/models"
)

var (
	ErrFlagNotFound = errors.New("feature flag not found")
	ErrFlagExists   = errors.New("feature flag key already exists")
	ErrInvalidFlag  = errors.New("invalid feature flag")
)

// FeatureFlagStore is implemented by repository.FeatureFlagRepository.
type FeatureFlagStore interface {
	Create(ctx context.Context, flag *models.FeatureFlag) error
	Save(ctx context.Context, flag *models.FeatureFlag) error
	FindByID(ctx context.Context, id string) (*models.FeatureFlag, error)
	List(ctx context.Context) ([]models.FeatureFlag, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// CacheInvalidator is implemented by features.Evaluator.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

type FeatureFlagService struct {
	repository FeatureFlagStore
	cache      CacheInvalidator
}

func NewFeatureFlagService(repo FeatureFlagStore, cache CacheInvalidator) *FeatureFlagService {
	return &FeatureFlagService{
		repository: repo,
		cache:      cache,
	}
}

// Fields accepted when creating a flag
type FlagInput struct {
	Key               string   `json:"key"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Enabled           bool     `json:"enabled"`
	RolloutPercentage int      `json:"rollout_percentage"`
	UserIDs           []string `json:"user_ids"`
}

// Partial update, nil fields are left untouched
type FlagPatch struct {
	Key               *string   `json:"key"`
	Name              *string   `json:"name"`
	Description       *string   `json:"description"`
	Enabled           *bool     `json:"enabled"`
	RolloutPercentage *int      `json:"rollout_percentage"`
	UserIDs           *[]string `json:"user_ids"`
}

func (p FlagPatch) IsEmpty() bool {
	return p.Key == nil && p.Name == nil && p.Description == nil &&
		p.Enabled == nil && p.RolloutPercentage == nil && p.UserIDs == nil
}

func (s *FeatureFlagService) List(ctx context.Context) ([]models.FeatureFlag, error) {
	return s.repository.List(ctx)
}

func (s *FeatureFlagService) Get(ctx context.Context, id string) (*models.FeatureFlag, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrFlagNotFound
	}

	flag, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, ErrFlagNotFound
	}
	return flag, nil
}

func (s *FeatureFlagService) Create(ctx context.Context, in FlagInput) (*models.FeatureFlag, error) {
	flag := &models.FeatureFlag{
		Key:               strings.TrimSpace(in.Key),
		Name:              strings.TrimSpace(in.Name),
		Description:       in.Description,
		Enabled:           in.Enabled,
		RolloutPercentage: in.RolloutPercentage,
		UserIDs:           normalizeUserIDs(in.UserIDs),
	}

	if err := validateFlag(flag); err != nil {
		return nil, err
	}

	if err := s.repository.Create(ctx, flag); err != nil {
		return nil, translateWriteError(err)
	}

	s.cache.InvalidateCache(ctx)
	return flag, nil
}

func (s *FeatureFlagService) Update(ctx context.Context, id string, patch FlagPatch) (*models.FeatureFlag, error) {
	flag, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Key != nil {
		flag.Key = strings.TrimSpace(*patch.Key)
	}
	if patch.Name != nil {
		flag.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		flag.Description = *patch.Description
	}
	if patch.Enabled != nil {
		flag.Enabled = *patch.Enabled
	}
	if patch.RolloutPercentage != nil {
		flag.RolloutPercentage = *patch.RolloutPercentage
	}
	if patch.UserIDs != nil {
		flag.UserIDs = normalizeUserIDs(*patch.UserIDs)
	}

	if err := validateFlag(flag); err != nil {
		return nil, err
	}

	if err := s.repository.Save(ctx, flag); err != nil {
		return nil, translateWriteError(err)
	}

	s.cache.InvalidateCache(ctx)
	return flag, nil
}

// Flips the master switch
func (s *FeatureFlagService) Toggle(ctx context.Context, id string) (*models.FeatureFlag, error) {
	flag, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	flag.Enabled = !flag.Enabled
	if err := s.repository.Save(ctx, flag); err != nil {
		return nil, translateWriteError(err)
	}

	s.cache.InvalidateCache(ctx)
	return flag, nil
}

func (s *FeatureFlagService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrFlagNotFound
	}

	deleted, err := s.repository.Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrFlagNotFound
	}

	s.cache.InvalidateCache(ctx)
	return nil
}

func validateFlag(flag *models.FeatureFlag) error {
	if flag.Key == "" || flag.Name == "" {
		return fmt.Errorf("%w: key and name are required", ErrInvalidFlag)
	}
	if flag.RolloutPercentage < 0 || flag.RolloutPercentage > 100 {
		return fmt.Errorf("%w: rollout percentage must be between 0 and 100", ErrInvalidFlag)
	}
	return nil
}

// Trims, drops blanks and de-duplicates while keeping order
func normalizeUserIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func translateWriteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrFlagExists
	}
	return fmt.Errorf("failed to save feature flag: %w", err)
}
