package service

import (
	"math"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
)

const (
	// KeywordBonusRatio acota el bono a una fraccion del puntaje base maximo.
	KeywordBonusRatio = 0.10
	// KeywordSaturation es cuantas coincidencias a nivel maximo llenan el bono.
	KeywordSaturation = 3.0
)

// ScoringEngine es puro: no guarda estado entre llamadas.
type ScoringEngine struct{}

func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// Score compara los vectores de la sesion con los del perfil dimension por dimension.
// Un vector ausente o invalido aporta 0 y marca el resultado como incompleto.
func (e *ScoringEngine) Score(
	sessionVectors map[domain.Dimension]pgvector.Vector,
	profileVectors repository.EntityVectors,
	weights domain.WeightSnapshot,
	sessionKeywords []string,
	profileKeywords map[string]int,
	keywordBonus bool,
) domain.ScoreBreakdown {
	var out domain.ScoreBreakdown
	var base float64
	for _, d := range domain.AllDimensions {
		sv, okSession := sessionVectors[d]
		pv, okProfile := profileVectors[d.String()]
		if !okSession || !okProfile {
			out.Incomplete = true
			out.MissingDimensions = append(out.MissingDimensions, d)
			continue
		}
		cos, ok := cosine(sv.Slice(), pv.Slice())
		if !ok {
			out.Incomplete = true
			out.MissingDimensions = append(out.MissingDimensions, d)
			continue
		}
		weighted := remapSimilarity(cos) * weights.DimensionWeights[d]
		out.Set(d, weighted)
		base += weighted
	}
	if keywordBonus {
		out.KeywordBonus = KeywordBonus(sessionKeywords, profileKeywords, weights.MaxBaseScore())
	}
	out.Total = base + out.KeywordBonus
	return out
}

// KeywordBonus suma el nivel de cada palabra clave coincidente (normalizado a 1) y lo satura.
func KeywordBonus(sessionKeywords []string, profileKeywords map[string]int, maxBaseScore float64) float64 {
	if len(sessionKeywords) == 0 || len(profileKeywords) == 0 || maxBaseScore <= 0 {
		return 0
	}
	levels := make(map[string]int, len(profileKeywords))
	for k, lvl := range profileKeywords {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || lvl <= 0 {
			continue
		}
		if lvl > domain.MaxKeywordProficiency {
			lvl = domain.MaxKeywordProficiency
		}
		if lvl > levels[key] {
			levels[key] = lvl
		}
	}
	seen := make(map[string]struct{}, len(sessionKeywords))
	var matched float64
	for _, k := range sessionKeywords {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if lvl, ok := levels[key]; ok {
			matched += float64(lvl) / domain.MaxKeywordProficiency
		}
	}
	return KeywordBonusRatio * maxBaseScore * math.Min(1, matched/KeywordSaturation)
}

// remapSimilarity lleva el coseno de [-1,1] a [0,1].
func remapSimilarity(cos float64) float64 {
	v := (cos + 1) / 2
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
