package domain

import "time"

// Answer es la respuesta a una pregunta, indexada por la clave de la pregunta.
type Answer struct {
	QuestionKey string   `json:"question_key"`
	ChoiceIDs   []string `json:"choice_ids,omitempty"`
	ImageIDs    []string `json:"image_ids,omitempty"`
	Text        string   `json:"text,omitempty"`
}

// MatchingSession la crea el flujo de intake; el motor la consume en solo lectura.
type MatchingSession struct {
	ID            string            `json:"id"`
	Answers       map[string]Answer `json:"answers"`
	DesiredRegion Region            `json:"desired_region,omitempty"`
	BudgetMin     int               `json:"budget_min,omitempty"`
	BudgetMax     int               `json:"budget_max,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func (s MatchingSession) HasBudget() bool {
	return s.BudgetMin > 0 || s.BudgetMax > 0
}
