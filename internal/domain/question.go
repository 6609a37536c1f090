package domain

import (
	"strings"
	"time"
)

type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeImageChoice    QuestionType = "image_choice"
	QuestionTypeTextarea       QuestionType = "textarea"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
)

// Question pertenece al subsistema del cuestionario; el motor solo la lee.
// EmbeddingGeneratedAt es nil mientras el vector este desactualizado respecto del texto.
type Question struct {
	ID                   string       `json:"id"`
	Key                  string       `json:"key"`
	Order                int          `json:"order"`
	Type                 QuestionType `json:"type"`
	Dimension            Dimension    `json:"weight_category"`
	Text                 string       `json:"text"`
	BaseWeight           float64      `json:"base_weight"`
	IsHardFilter         bool         `json:"is_hard_filter"`
	IsActive             bool         `json:"is_active"`
	EmbeddingGeneratedAt *time.Time   `json:"embedding_generated_at,omitempty"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

type Choice struct {
	ID                   string     `json:"id"`
	QuestionID           string     `json:"question_id"`
	Label                string     `json:"label"`
	Keywords             []string   `json:"keywords,omitempty"`
	EmbeddingGeneratedAt *time.Time `json:"embedding_generated_at,omitempty"`
}

type Image struct {
	ID                   string     `json:"id"`
	QuestionID           string     `json:"question_id"`
	URL                  string     `json:"url"`
	Description          string     `json:"description,omitempty"`
	EmbeddingGeneratedAt *time.Time `json:"embedding_generated_at,omitempty"`
}

// EmbeddingText devuelve el texto que se envia al embedder: la descripcion si existe, si no la URL.
func (i Image) EmbeddingText() string {
	if desc := strings.TrimSpace(i.Description); desc != "" {
		return desc
	}
	return strings.TrimSpace(i.URL)
}
