package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	pgvector "github.com/pgvector/pgvector-go"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
)

// SessionProfile es lo que el scoring necesita de una sesion.
type SessionProfile struct {
	Vectors  map[domain.Dimension]pgvector.Vector
	Keywords []string
}

// SessionVectorBuilder deriva un vector por dimension a partir de las respuestas.
type SessionVectorBuilder struct {
	questions repository.QuestionRepository
	vectors   repository.VectorStore
}

func NewSessionVectorBuilder(questions repository.QuestionRepository, vectors repository.VectorStore) *SessionVectorBuilder {
	return &SessionVectorBuilder{questions: questions, vectors: vectors}
}

type answeredQuestion struct {
	question domain.Question
	answer   domain.Answer
}

// Build promedia, por dimension, los vectores de las opciones e imagenes elegidas ponderados por
// el peso de cada pregunta. Las respuestas de texto libre solo aportan palabras clave.
func (b *SessionVectorBuilder) Build(ctx context.Context, session domain.MatchingSession, weights domain.WeightSnapshot) (SessionProfile, error) {
	active, err := b.questions.ListActive(ctx)
	if err != nil {
		return SessionProfile{}, fmt.Errorf("list active questions: %w", err)
	}

	var answered []answeredQuestion
	var choiceIDs, imageIDs []string
	keywords := make(map[string]struct{})
	for _, q := range active {
		ans, ok := session.Answers[q.Key]
		if !ok {
			continue
		}
		if q.Type == domain.QuestionTypeTextarea {
			for _, tok := range tokenize(ans.Text) {
				keywords[tok] = struct{}{}
			}
			continue
		}
		answered = append(answered, answeredQuestion{question: q, answer: ans})
		choiceIDs = append(choiceIDs, ans.ChoiceIDs...)
		imageIDs = append(imageIDs, ans.ImageIDs...)
	}

	choices, err := b.questions.ListChoices(ctx, choiceIDs)
	if err != nil {
		return SessionProfile{}, fmt.Errorf("list choices: %w", err)
	}
	choiceByID := make(map[string]domain.Choice, len(choices))
	for _, c := range choices {
		choiceByID[c.ID] = c
	}

	images, err := b.questions.ListImages(ctx, imageIDs)
	if err != nil {
		return SessionProfile{}, fmt.Errorf("list images: %w", err)
	}
	imageQuestion := make(map[string]string, len(images))
	for _, img := range images {
		imageQuestion[img.ID] = img.QuestionID
	}

	choiceVectors, err := b.vectors.GetMany(ctx, domain.JobTypeChoice, choiceIDs)
	if err != nil {
		return SessionProfile{}, fmt.Errorf("load choice vectors: %w", err)
	}
	imageVectors, err := b.vectors.GetMany(ctx, domain.JobTypeImage, imageIDs)
	if err != nil {
		return SessionProfile{}, fmt.Errorf("load image vectors: %w", err)
	}

	acc := make(map[domain.Dimension]*vectorAccumulator, len(domain.AllDimensions))
	for _, aq := range answered {
		var selected [][]float32
		for _, id := range aq.answer.ChoiceIDs {
			c, ok := choiceByID[id]
			if !ok || c.QuestionID != aq.question.ID {
				continue
			}
			for _, kw := range c.Keywords {
				if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
					keywords[kw] = struct{}{}
				}
			}
			if v, ok := choiceVectors[id][repository.FacetDefault]; ok {
				selected = append(selected, v.Slice())
			}
		}
		for _, id := range aq.answer.ImageIDs {
			if qid, ok := imageQuestion[id]; !ok || qid != aq.question.ID {
				continue
			}
			if v, ok := imageVectors[id][repository.FacetDefault]; ok {
				selected = append(selected, v.Slice())
			}
		}
		if len(selected) == 0 {
			continue
		}
		a, ok := acc[aq.question.Dimension]
		if !ok {
			a = &vectorAccumulator{}
			acc[aq.question.Dimension] = a
		}
		a.add(selected, weights.QuestionWeights[aq.question.ID])
	}

	out := SessionProfile{Vectors: make(map[domain.Dimension]pgvector.Vector, len(acc))}
	for _, d := range domain.AllDimensions {
		if a, ok := acc[d]; ok {
			if v, ok := a.result(); ok {
				out.Vectors[d] = pgvector.NewVector(v)
			}
		}
	}
	out.Keywords = make([]string, 0, len(keywords))
	for kw := range keywords {
		out.Keywords = append(out.Keywords, kw)
	}
	sort.Strings(out.Keywords)
	return out, nil
}

// vectorAccumulator lleva la suma ponderada y la suma simple; la simple se usa cuando
// todas las preguntas de la dimension tienen peso cero.
type vectorAccumulator struct {
	weighted    []float64
	plain       []float64
	weightTotal float64
	count       int
}

func (a *vectorAccumulator) add(selected [][]float32, weight float64) {
	mean := meanVector(selected, len(a.plain))
	if mean == nil {
		return
	}
	if a.plain == nil {
		a.weighted = make([]float64, len(mean))
		a.plain = make([]float64, len(mean))
	}
	for i, x := range mean {
		a.plain[i] += x
		if weight > 0 {
			a.weighted[i] += x * weight
		}
	}
	if weight > 0 {
		a.weightTotal += weight
	}
	a.count++
}

func (a *vectorAccumulator) result() ([]float32, bool) {
	if a.count == 0 {
		return nil, false
	}
	src, div := a.plain, float64(a.count)
	if a.weightTotal > 0 {
		src, div = a.weighted, a.weightTotal
	}
	out := make([]float32, len(src))
	for i, x := range src {
		out[i] = float32(x / div)
	}
	return out, true
}

// meanVector promedia los vectores con la longitud esperada (la del primero si dim es 0).
func meanVector(vectors [][]float32, dim int) []float64 {
	var sum []float64
	n := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			continue
		}
		if sum == nil {
			sum = make([]float64, dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
