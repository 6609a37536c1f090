package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"photo-match/internal/domain"
)

type SessionRepository interface {
	GetByID(ctx context.Context, id string) (domain.MatchingSession, error)
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.MatchingSession, error) {
	const query = `
		SELECT id, answers, desired_region, budget_min, budget_max, created_at, completed_at
		FROM matching_sessions
		WHERE id = $1
	`
	var session domain.MatchingSession
	var answers []byte
	var region string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&answers,
		&region,
		&session.BudgetMin,
		&session.BudgetMax,
		&session.CreatedAt,
		&session.CompletedAt,
	)
	if err != nil {
		return domain.MatchingSession{}, err
	}
	session.DesiredRegion = domain.NormalizeRegion(region)
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &session.Answers); err != nil {
			return domain.MatchingSession{}, fmt.Errorf("session %s answers: %w", id, err)
		}
	}
	return session, nil
}
