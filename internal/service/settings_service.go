package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
)

var ErrInvalidSettings = errors.New("invalid match settings")

const maxResultsCeiling = 100

// SettingsService expone los ajustes del matching que administra el panel.
type SettingsService struct {
	logger   *zap.Logger
	settings repository.SettingsRepository
}

func NewSettingsService(logger *zap.Logger, settings repository.SettingsRepository) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{logger: logger, settings: settings}
}

func (s *SettingsService) Get(ctx context.Context) (domain.MatchSettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return domain.MatchSettings{}, fmt.Errorf("load match settings: %w", err)
	}
	return settings, nil
}

// Update valida y guarda los ajustes completos; no hay actualizaciones parciales.
func (s *SettingsService) Update(ctx context.Context, settings domain.MatchSettings) (domain.MatchSettings, error) {
	if settings.MaxResults < 1 || settings.MaxResults > maxResultsCeiling {
		return domain.MatchSettings{}, fmt.Errorf("%w: max_results must be between 1 and %d", ErrInvalidSettings, maxResultsCeiling)
	}
	if settings.MinSimilarityScore < 0 || settings.MinSimilarityScore > 1+KeywordBonusRatio {
		return domain.MatchSettings{}, fmt.Errorf("%w: min_similarity_score must be between 0 and %.1f", ErrInvalidSettings, 1+KeywordBonusRatio)
	}
	if err := s.settings.Save(ctx, settings); err != nil {
		return domain.MatchSettings{}, fmt.Errorf("save match settings: %w", err)
	}
	s.logger.Info("match settings updated", zap.Any("settings", settings))
	return settings, nil
}
