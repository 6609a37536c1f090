package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photo-match/internal/domain"
)

// QuestionRepository lee el cuestionario y aplica las ediciones que invalidan embeddings.
// Toda edicion de texto anula el vector en la misma transaccion.
type QuestionRepository interface {
	ListActive(ctx context.Context) ([]domain.Question, error)
	GetByID(ctx context.Context, id string) (domain.Question, error)
	GetChoice(ctx context.Context, id string) (domain.Choice, error)
	GetImage(ctx context.Context, id string) (domain.Image, error)
	ListChoices(ctx context.Context, ids []string) ([]domain.Choice, error)
	ListImages(ctx context.Context, ids []string) ([]domain.Image, error)
	ReplaceWeights(ctx context.Context, weights map[string]float64) error
	UpdateQuestionText(ctx context.Context, id, text string) error
	UpdateChoice(ctx context.Context, id, label string, keywords []string) error
	UpdateImage(ctx context.Context, id, url, description string) error
	MarkEmbedded(ctx context.Context, kind domain.JobType, id string, at time.Time) error
}

type PgQuestionRepository struct {
	pool *pgxpool.Pool
}

func NewPgQuestionRepository(pool *pgxpool.Pool) *PgQuestionRepository {
	return &PgQuestionRepository{pool: pool}
}

const questionColumns = `id, key, sort_order, type, weight_category, text, base_weight, is_hard_filter, is_active, embedding_generated_at, updated_at`

func (r *PgQuestionRepository) ListActive(ctx context.Context) ([]domain.Question, error) {
	const query = `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE is_active
		ORDER BY sort_order, id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *PgQuestionRepository) GetByID(ctx context.Context, id string) (domain.Question, error) {
	const query = `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	return scanQuestion(r.pool.QueryRow(ctx, query, id))
}

func (r *PgQuestionRepository) GetChoice(ctx context.Context, id string) (domain.Choice, error) {
	const query = `
		SELECT id, question_id, label, keywords, embedding_generated_at
		FROM question_choices
		WHERE id = $1
	`
	var c domain.Choice
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.QuestionID, &c.Label, &c.Keywords, &c.EmbeddingGeneratedAt)
	return c, err
}

func (r *PgQuestionRepository) GetImage(ctx context.Context, id string) (domain.Image, error) {
	const query = `
		SELECT id, question_id, url, description, embedding_generated_at
		FROM question_images
		WHERE id = $1
	`
	var img domain.Image
	err := r.pool.QueryRow(ctx, query, id).Scan(&img.ID, &img.QuestionID, &img.URL, &img.Description, &img.EmbeddingGeneratedAt)
	return img, err
}

func (r *PgQuestionRepository) ListChoices(ctx context.Context, ids []string) ([]domain.Choice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `
		SELECT id, question_id, label, keywords, embedding_generated_at
		FROM question_choices
		WHERE id = ANY($1)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var choices []domain.Choice
	for rows.Next() {
		var c domain.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.Keywords, &c.EmbeddingGeneratedAt); err != nil {
			return nil, err
		}
		choices = append(choices, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return choices, nil
}

func (r *PgQuestionRepository) ListImages(ctx context.Context, ids []string) ([]domain.Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `
		SELECT id, question_id, url, description, embedding_generated_at
		FROM question_images
		WHERE id = ANY($1)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.Image
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.QuestionID, &img.URL, &img.Description, &img.EmbeddingGeneratedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

// ReplaceWeights escribe todos los pesos en una sola transaccion: o se aplican todos o ninguno.
func (r *PgQuestionRepository) ReplaceWeights(ctx context.Context, weights map[string]float64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `UPDATE questions SET base_weight = $2, updated_at = $3 WHERE id = $1`
	now := time.Now().UTC()
	for id, w := range weights {
		tag, err := tx.Exec(ctx, query, id, w, now)
		if err != nil {
			return fmt.Errorf("update weight %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update weight %s: %w", id, pgx.ErrNoRows)
		}
	}
	return tx.Commit(ctx)
}

func (r *PgQuestionRepository) UpdateQuestionText(ctx context.Context, id, text string) error {
	const query = `UPDATE questions SET text = $2, embedding_generated_at = NULL, updated_at = now() WHERE id = $1`
	return r.updateAndInvalidate(ctx, domain.JobTypeQuestion, id, query, id, text)
}

func (r *PgQuestionRepository) UpdateChoice(ctx context.Context, id, label string, keywords []string) error {
	if keywords == nil {
		keywords = []string{}
	}
	const query = `UPDATE question_choices SET label = $2, keywords = $3, embedding_generated_at = NULL WHERE id = $1`
	return r.updateAndInvalidate(ctx, domain.JobTypeChoice, id, query, id, label, keywords)
}

func (r *PgQuestionRepository) UpdateImage(ctx context.Context, id, url, description string) error {
	const query = `UPDATE question_images SET url = $2, description = $3, embedding_generated_at = NULL WHERE id = $1`
	return r.updateAndInvalidate(ctx, domain.JobTypeImage, id, query, id, url, description)
}

func (r *PgQuestionRepository) MarkEmbedded(ctx context.Context, kind domain.JobType, id string, at time.Time) error {
	var query string
	switch kind {
	case domain.JobTypeQuestion:
		query = `UPDATE questions SET embedding_generated_at = $2 WHERE id = $1`
	case domain.JobTypeChoice:
		query = `UPDATE question_choices SET embedding_generated_at = $2 WHERE id = $1`
	case domain.JobTypeImage:
		query = `UPDATE question_images SET embedding_generated_at = $2 WHERE id = $1`
	default:
		return fmt.Errorf("mark embedded: unsupported kind %q", kind)
	}
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

func (r *PgQuestionRepository) updateAndInvalidate(ctx context.Context, kind domain.JobType, id, query string, args ...any) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if err := deleteVectorsTx(ctx, tx, kind, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func deleteVectorsTx(ctx context.Context, tx pgx.Tx, kind domain.JobType, id string) error {
	_, err := tx.Exec(ctx, `DELETE FROM entity_embeddings WHERE entity_type = $1 AND entity_id = $2`, string(kind), id)
	return err
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	var qType, category string
	err := row.Scan(
		&q.ID,
		&q.Key,
		&q.Order,
		&qType,
		&category,
		&q.Text,
		&q.BaseWeight,
		&q.IsHardFilter,
		&q.IsActive,
		&q.EmbeddingGeneratedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qType)
	dim, err := domain.ParseDimension(category)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	q.Dimension = dim
	return q, nil
}
