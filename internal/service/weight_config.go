package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/metrics"
	"photo-match/internal/repository"
)

var (
	ErrWeightsDoNotSum           = errors.New("dimension weights must sum to 100")
	ErrDimensionWithoutQuestions = errors.New("dimension has no active questions")
	ErrUnknownDimension          = errors.New("unknown dimension")
	ErrInvalidWeight             = errors.New("invalid dimension weight")
)

const (
	weightSumTolerance = 0.01
	driftWarnThreshold = 0.001
)

// WeightConfigService es la unica fuente de pesos del proceso.
// Los lectores ven siempre un snapshot completo; las escrituras se serializan y reemplazan el puntero.
type WeightConfigService struct {
	logger     *zap.Logger
	questions  repository.QuestionRepository
	current    atomic.Pointer[domain.WeightSnapshot]
	generation atomic.Int64
	writeMu    sync.Mutex
}

func NewWeightConfigService(logger *zap.Logger, questions repository.QuestionRepository) *WeightConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeightConfigService{logger: logger, questions: questions}
}

// Load lee las preguntas activas y publica un snapshot nuevo.
func (s *WeightConfigService) Load(ctx context.Context) (domain.WeightSnapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.loadLocked(ctx)
}

// Refresh recarga despues de ediciones externas del cuestionario.
func (s *WeightConfigService) Refresh(ctx context.Context) (domain.WeightSnapshot, error) {
	return s.Load(ctx)
}

// Current devuelve el snapshot vigente sin bloquear. ok es false si todavia no se cargo.
func (s *WeightConfigService) Current() (domain.WeightSnapshot, bool) {
	snap := s.current.Load()
	if snap == nil {
		return domain.WeightSnapshot{}, false
	}
	return *snap, true
}

// Ensure devuelve el snapshot vigente y lo carga la primera vez.
func (s *WeightConfigService) Ensure(ctx context.Context) (domain.WeightSnapshot, error) {
	if snap, ok := s.Current(); ok {
		return snap, nil
	}
	return s.Load(ctx)
}

// SetDimensionWeights valida los porcentajes y reparte cada cuota en partes iguales entre
// las preguntas activas de su dimension. Si algo falla el snapshot anterior queda intacto.
func (s *WeightConfigService) SetDimensionWeights(ctx context.Context, percents map[domain.Dimension]float64) (domain.WeightSnapshot, error) {
	if err := validatePercents(percents); err != nil {
		s.logger.Warn("dimension weights rejected", zap.Any("percents", percents), zap.Error(err))
		return domain.WeightSnapshot{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	active, err := s.questions.ListActive(ctx)
	if err != nil {
		return domain.WeightSnapshot{}, fmt.Errorf("list active questions: %w", err)
	}
	counts := countByDimension(active)
	for _, d := range domain.AllDimensions {
		if percents[d] > 0 && counts[d] == 0 {
			s.logger.Warn("dimension weights rejected", zap.String("dimension", d.String()), zap.Error(ErrDimensionWithoutQuestions))
			return domain.WeightSnapshot{}, fmt.Errorf("%w: %s", ErrDimensionWithoutQuestions, d)
		}
	}

	weights := make(map[string]float64, len(active))
	for i, q := range active {
		w := percents[q.Dimension] / 100 / float64(counts[q.Dimension])
		weights[q.ID] = w
		active[i].BaseWeight = w
	}
	if err := s.questions.ReplaceWeights(ctx, weights); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WeightSnapshot{}, fmt.Errorf("replace weights: question disappeared: %w", err)
		}
		return domain.WeightSnapshot{}, fmt.Errorf("replace weights: %w", err)
	}

	snap := s.publish(active)
	s.logger.Info("dimension weights updated",
		zap.Any("dimension_weights", snap.DimensionWeights),
		zap.Int64("generation", snap.Generation),
	)
	return snap, nil
}

func (s *WeightConfigService) loadLocked(ctx context.Context) (domain.WeightSnapshot, error) {
	active, err := s.questions.ListActive(ctx)
	if err != nil {
		return domain.WeightSnapshot{}, fmt.Errorf("list active questions: %w", err)
	}
	snap := s.publish(active)
	s.logger.Info("weights loaded",
		zap.Int("active_questions", len(active)),
		zap.Float64("drift", snap.Drift),
		zap.Int64("generation", snap.Generation),
	)
	return snap, nil
}

func (s *WeightConfigService) publish(active []domain.Question) domain.WeightSnapshot {
	snap := buildSnapshot(active)
	snap.Generation = s.generation.Add(1)
	snap.LoadedAt = time.Now().UTC()
	s.current.Store(&snap)

	metrics.WeightDrift.Set(snap.Drift)
	if snap.Drift > driftWarnThreshold {
		s.logger.Warn("question weights do not total 100%",
			zap.Float64("total", snap.MaxBaseScore()),
			zap.Float64("drift", snap.Drift),
		)
	}
	return snap
}

func buildSnapshot(active []domain.Question) domain.WeightSnapshot {
	snap := domain.WeightSnapshot{
		DimensionWeights: make(map[domain.Dimension]float64, len(domain.AllDimensions)),
		QuestionWeights:  make(map[string]float64, len(active)),
		ActiveCounts:     make(map[domain.Dimension]int, len(domain.AllDimensions)),
	}
	for _, d := range domain.AllDimensions {
		snap.DimensionWeights[d] = 0
		snap.ActiveCounts[d] = 0
	}
	for _, q := range active {
		if !q.Dimension.Valid() {
			continue
		}
		snap.DimensionWeights[q.Dimension] += q.BaseWeight
		snap.QuestionWeights[q.ID] = q.BaseWeight
		snap.ActiveCounts[q.Dimension]++
	}
	snap.Drift = math.Abs(snap.MaxBaseScore() - 1)
	snap.Fingerprint = fingerprint(snap.QuestionWeights)
	return snap
}

// fingerprint identifica el reparto de pesos entre procesos que comparten la cache.
func fingerprint(questionWeights map[string]float64) string {
	ids := make([]string, 0, len(questionWeights))
	for id := range questionWeights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := fnv.New64a()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{'='})
		h.Write([]byte(strconv.FormatFloat(questionWeights[id], 'g', -1, 64)))
		h.Write([]byte{';'})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func validatePercents(percents map[domain.Dimension]float64) error {
	for d, v := range percents {
		if !d.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownDimension, string(d))
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, d, v)
		}
	}
	var sum float64
	for _, d := range domain.AllDimensions {
		v, ok := percents[d]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidWeight, d)
		}
		sum += v
	}
	if math.Abs(sum-100) > weightSumTolerance {
		return fmt.Errorf("%w: got %.2f", ErrWeightsDoNotSum, sum)
	}
	return nil
}

func countByDimension(questions []domain.Question) map[domain.Dimension]int {
	counts := make(map[domain.Dimension]int, len(domain.AllDimensions))
	for _, q := range questions {
		counts[q.Dimension]++
	}
	return counts
}
