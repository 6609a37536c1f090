package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photo-match/internal/domain"
)

type PhotographerRepository interface {
	ListComplete(ctx context.Context) ([]domain.PhotographerProfile, error)
	ListIDs(ctx context.Context, completeOnly bool) ([]string, error)
	GetByID(ctx context.Context, photographerID string) (domain.PhotographerProfile, error)
	// UpdateDescriptions recalcula profile_completed y anula los vectores del perfil.
	UpdateDescriptions(ctx context.Context, photographerID string, descriptions map[domain.Dimension]string) (domain.PhotographerProfile, error)
	MarkEmbeddingsGenerated(ctx context.Context, photographerID string, at time.Time) error
}

type PgPhotographerRepository struct {
	pool *pgxpool.Pool
}

func NewPgPhotographerRepository(pool *pgxpool.Pool) *PgPhotographerRepository {
	return &PgPhotographerRepository{pool: pool}
}

const profileColumns = `photographer_id, name, style_emotion_text, communication_psychology_text, purpose_story_text, companion_text,
	service_regions, price_range_min, price_range_max, keywords, profile_completed, embeddings_generated_at, updated_at`

func (r *PgPhotographerRepository) ListComplete(ctx context.Context) ([]domain.PhotographerProfile, error) {
	const query = `
		SELECT ` + profileColumns + `
		FROM photographer_profiles
		WHERE profile_completed
		ORDER BY photographer_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.PhotographerProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *PgPhotographerRepository) ListIDs(ctx context.Context, completeOnly bool) ([]string, error) {
	const query = `
		SELECT photographer_id
		FROM photographer_profiles
		WHERE NOT $1 OR profile_completed
		ORDER BY photographer_id
	`
	rows, err := r.pool.Query(ctx, query, completeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PgPhotographerRepository) GetByID(ctx context.Context, photographerID string) (domain.PhotographerProfile, error) {
	const query = `SELECT ` + profileColumns + ` FROM photographer_profiles WHERE photographer_id = $1`
	return scanProfile(r.pool.QueryRow(ctx, query, photographerID))
}

func (r *PgPhotographerRepository) UpdateDescriptions(ctx context.Context, photographerID string, descriptions map[domain.Dimension]string) (domain.PhotographerProfile, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.PhotographerProfile{}, err
	}
	defer tx.Rollback(ctx)

	candidate := domain.PhotographerProfile{Descriptions: descriptions}
	const query = `
		UPDATE photographer_profiles
		SET style_emotion_text = $2,
			communication_psychology_text = $3,
			purpose_story_text = $4,
			companion_text = $5,
			profile_completed = $6,
			embeddings_generated_at = NULL,
			updated_at = $7
		WHERE photographer_id = $1
		RETURNING ` + profileColumns
	profile, err := scanProfile(tx.QueryRow(ctx, query,
		photographerID,
		strings.TrimSpace(descriptions[domain.DimensionStyleEmotion]),
		strings.TrimSpace(descriptions[domain.DimensionCommunicationPsychology]),
		strings.TrimSpace(descriptions[domain.DimensionPurposeStory]),
		strings.TrimSpace(descriptions[domain.DimensionCompanion]),
		candidate.IsComplete(),
		time.Now().UTC(),
	))
	if err != nil {
		return domain.PhotographerProfile{}, err
	}
	if err := deleteVectorsTx(ctx, tx, domain.JobTypePhotographerProfile, photographerID); err != nil {
		return domain.PhotographerProfile{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.PhotographerProfile{}, err
	}
	return profile, nil
}

func (r *PgPhotographerRepository) MarkEmbeddingsGenerated(ctx context.Context, photographerID string, at time.Time) error {
	const query = `UPDATE photographer_profiles SET embeddings_generated_at = $2 WHERE photographer_id = $1`
	_, err := r.pool.Exec(ctx, query, photographerID, at)
	return err
}

func scanProfile(row pgx.Row) (domain.PhotographerProfile, error) {
	var p domain.PhotographerProfile
	var style, communication, purpose, companion string
	var regions []string
	var keywords []byte
	err := row.Scan(
		&p.PhotographerID,
		&p.Name,
		&style,
		&communication,
		&purpose,
		&companion,
		&regions,
		&p.PriceRangeMin,
		&p.PriceRangeMax,
		&keywords,
		&p.ProfileCompleted,
		&p.EmbeddingsGeneratedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.PhotographerProfile{}, err
	}
	p.Descriptions = map[domain.Dimension]string{
		domain.DimensionStyleEmotion:            style,
		domain.DimensionCommunicationPsychology: communication,
		domain.DimensionPurposeStory:            purpose,
		domain.DimensionCompanion:               companion,
	}
	for _, reg := range regions {
		p.ServiceRegions = append(p.ServiceRegions, domain.NormalizeRegion(reg))
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &p.Keywords); err != nil {
			return domain.PhotographerProfile{}, fmt.Errorf("photographer %s keywords: %w", p.PhotographerID, err)
		}
	}
	return p, nil
}
