package domain

import "time"

// MatchSettings es la superficie de configuracion administrada desde el panel.
type MatchSettings struct {
	MaxResults            int     `json:"max_results"`
	MinSimilarityScore    float64 `json:"min_similarity_score"`
	EnableKeywordBonus    bool    `json:"enable_keyword_bonus"`
	EnableRegionFilter    bool    `json:"enable_region_filter"`
	EnableBudgetFilter    bool    `json:"enable_budget_filter"`
	CacheResults          bool    `json:"cache_results"`
	AutoRefreshEmbeddings bool    `json:"auto_refresh_embeddings"`
}

func DefaultMatchSettings() MatchSettings {
	return MatchSettings{
		MaxResults:            10,
		MinSimilarityScore:    0.7,
		EnableKeywordBonus:    true,
		EnableRegionFilter:    true,
		EnableBudgetFilter:    true,
		CacheResults:          false,
		AutoRefreshEmbeddings: true,
	}
}

// WeightSnapshot es inmutable: se reemplaza completo en cada edicion.
type WeightSnapshot struct {
	DimensionWeights map[Dimension]float64 `json:"dimension_weights"`
	QuestionWeights  map[string]float64    `json:"question_weights"`
	ActiveCounts     map[Dimension]int     `json:"active_counts"`
	Drift            float64               `json:"drift"`
	Generation       int64                 `json:"generation"`
	Fingerprint      string                `json:"fingerprint"`
	LoadedAt         time.Time             `json:"loaded_at"`
}

// MaxBaseScore es la suma de los pesos por dimension (1.0 cuando no hay deriva).
func (w WeightSnapshot) MaxBaseScore() float64 {
	var total float64
	for _, d := range AllDimensions {
		total += w.DimensionWeights[d]
	}
	return total
}

type ScoreBreakdown struct {
	Style             float64     `json:"style"`
	Communication     float64     `json:"communication"`
	Purpose           float64     `json:"purpose"`
	Companion         float64     `json:"companion"`
	KeywordBonus      float64     `json:"keyword_bonus"`
	Total             float64     `json:"total"`
	Incomplete        bool        `json:"incomplete,omitempty"`
	MissingDimensions []Dimension `json:"missing_dimensions,omitempty"`
}

// Set guarda el puntaje ponderado de una dimension en su campo.
func (b *ScoreBreakdown) Set(d Dimension, v float64) {
	switch d {
	case DimensionStyleEmotion:
		b.Style = v
	case DimensionCommunicationPsychology:
		b.Communication = v
	case DimensionPurposeStory:
		b.Purpose = v
	case DimensionCompanion:
		b.Companion = v
	}
}

func (b ScoreBreakdown) Get(d Dimension) float64 {
	switch d {
	case DimensionStyleEmotion:
		return b.Style
	case DimensionCommunicationPsychology:
		return b.Communication
	case DimensionPurposeStory:
		return b.Purpose
	case DimensionCompanion:
		return b.Companion
	}
	return 0
}

type MatchResult struct {
	PhotographerID string         `json:"photographer_id"`
	Name           string         `json:"name"`
	Score          ScoreBreakdown `json:"score"`
}
