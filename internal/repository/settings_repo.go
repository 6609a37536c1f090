package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photo-match/internal/domain"
)

// SettingsRepository guarda la fila unica de matching_settings.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.MatchSettings, error)
	Save(ctx context.Context, settings domain.MatchSettings) error
}

type PgSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewPgSettingsRepository(pool *pgxpool.Pool) *PgSettingsRepository {
	return &PgSettingsRepository{pool: pool}
}

func (r *PgSettingsRepository) Get(ctx context.Context) (domain.MatchSettings, error) {
	const query = `
		SELECT max_results, min_similarity_score, enable_keyword_bonus, enable_region_filter,
			enable_budget_filter, cache_results, auto_refresh_embeddings
		FROM matching_settings
		WHERE id = 1
	`
	var s domain.MatchSettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.MaxResults,
		&s.MinSimilarityScore,
		&s.EnableKeywordBonus,
		&s.EnableRegionFilter,
		&s.EnableBudgetFilter,
		&s.CacheResults,
		&s.AutoRefreshEmbeddings,
	)
	// Sin fila todavia: se usan los valores de fabrica.
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultMatchSettings(), nil
	}
	return s, err
}

func (r *PgSettingsRepository) Save(ctx context.Context, s domain.MatchSettings) error {
	const query = `
		INSERT INTO matching_settings (id, max_results, min_similarity_score, enable_keyword_bonus, enable_region_filter,
			enable_budget_filter, cache_results, auto_refresh_embeddings, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			max_results = EXCLUDED.max_results,
			min_similarity_score = EXCLUDED.min_similarity_score,
			enable_keyword_bonus = EXCLUDED.enable_keyword_bonus,
			enable_region_filter = EXCLUDED.enable_region_filter,
			enable_budget_filter = EXCLUDED.enable_budget_filter,
			cache_results = EXCLUDED.cache_results,
			auto_refresh_embeddings = EXCLUDED.auto_refresh_embeddings,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		s.MaxResults,
		s.MinSimilarityScore,
		s.EnableKeywordBonus,
		s.EnableRegionFilter,
		s.EnableBudgetFilter,
		s.CacheResults,
		s.AutoRefreshEmbeddings,
	)
	return err
}
