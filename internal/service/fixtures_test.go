package service

import (
	"math"

	pgvector "github.com/pgvector/pgvector-go"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
)

// questionnaire arma un cuestionario minimo: dos preguntas de estilo, una por cada otra dimension.
func questionnaire(vectors repository.VectorStore) *repository.MemoryQuestionRepository {
	repo := repository.NewMemoryQuestionRepository(vectors)
	repo.AddQuestion(domain.Question{ID: "q-style-1", Key: "style_mood", Order: 1, Type: domain.QuestionTypeImageChoice, Dimension: domain.DimensionStyleEmotion, BaseWeight: 0.2, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "q-style-2", Key: "style_light", Order: 2, Type: domain.QuestionTypeSingleChoice, Dimension: domain.DimensionStyleEmotion, BaseWeight: 0.2, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "q-comm", Key: "comm_pace", Order: 3, Type: domain.QuestionTypeSingleChoice, Dimension: domain.DimensionCommunicationPsychology, BaseWeight: 0.3, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "q-purpose", Key: "purpose", Order: 4, Type: domain.QuestionTypeMultipleChoice, Dimension: domain.DimensionPurposeStory, BaseWeight: 0.2, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "q-companion", Key: "companion", Order: 5, Type: domain.QuestionTypeSingleChoice, Dimension: domain.DimensionCompanion, BaseWeight: 0.1, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "q-notes", Key: "notes", Order: 6, Type: domain.QuestionTypeTextarea, Dimension: domain.DimensionPurposeStory, BaseWeight: 0, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "q-retired", Key: "retired", Order: 7, Type: domain.QuestionTypeSingleChoice, Dimension: domain.DimensionCompanion, BaseWeight: 0.5, IsActive: false})
	return repo
}

// defaultWeights devuelve el snapshot de fabrica 40/30/20/10.
func defaultWeights() domain.WeightSnapshot {
	return domain.WeightSnapshot{
		DimensionWeights: map[domain.Dimension]float64{
			domain.DimensionStyleEmotion:            0.4,
			domain.DimensionCommunicationPsychology: 0.3,
			domain.DimensionPurposeStory:            0.2,
			domain.DimensionCompanion:               0.1,
		},
		Generation:  1,
		Fingerprint: "test",
	}
}

// vectorWithCosine devuelve un vector unitario cuyo coseno contra (1,0) es cos.
func vectorWithCosine(cos float64) pgvector.Vector {
	return pgvector.NewVector([]float32{float32(cos), float32(math.Sqrt(math.Max(0, 1-cos*cos)))})
}

// vectorWithSimilarity devuelve un vector cuya similitud remapeada (cos+1)/2 contra (1,0) es sim.
func vectorWithSimilarity(sim float64) pgvector.Vector {
	return vectorWithCosine(2*sim - 1)
}

func unitX() pgvector.Vector {
	return pgvector.NewVector([]float32{1, 0})
}

func sessionAllUnitX() map[domain.Dimension]pgvector.Vector {
	out := make(map[domain.Dimension]pgvector.Vector, len(domain.AllDimensions))
	for _, d := range domain.AllDimensions {
		out[d] = unitX()
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}
