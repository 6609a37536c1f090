package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/metrics"
	"photo-match/internal/repository"
)

var ErrSessionNotFound = errors.New("session not found")

const defaultMaxResults = 10

// MatchRanker es una funcion pura de la sesion, los ajustes y el snapshot vigente de pesos y vectores.
type MatchRanker struct {
	logger         *zap.Logger
	sessions       repository.SessionRepository
	photographers  repository.PhotographerRepository
	vectors        repository.VectorStore
	weights        *WeightConfigService
	sessionVectors *SessionVectorBuilder
	filters        *HardFilterEngine
	scoring        *ScoringEngine
	cache          MatchCache
}

func NewMatchRanker(
	logger *zap.Logger,
	sessions repository.SessionRepository,
	photographers repository.PhotographerRepository,
	questions repository.QuestionRepository,
	vectors repository.VectorStore,
	weights *WeightConfigService,
	cache MatchCache,
) *MatchRanker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchRanker{
		logger:         logger,
		sessions:       sessions,
		photographers:  photographers,
		vectors:        vectors,
		weights:        weights,
		sessionVectors: NewSessionVectorBuilder(questions, vectors),
		filters:        NewHardFilterEngine(logger),
		scoring:        NewScoringEngine(),
		cache:          cache,
	}
}

// Rank devuelve los fotografos ordenados por puntaje descendente, desempatando por id.
func (r *MatchRanker) Rank(ctx context.Context, sessionID string, settings domain.MatchSettings) ([]domain.MatchResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return r.RankSession(ctx, session, settings)
}

// RankSession es Rank con la sesion ya cargada.
func (r *MatchRanker) RankSession(ctx context.Context, session domain.MatchingSession, settings domain.MatchSettings) ([]domain.MatchResult, error) {
	started := time.Now()
	defer func() { metrics.RankDuration.Observe(time.Since(started).Seconds()) }()

	if settings.MaxResults <= 0 {
		settings.MaxResults = defaultMaxResults
	}
	weights, err := r.weights.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}

	cacheKey := ""
	if settings.CacheResults && r.cache != nil {
		cacheKey = MatchCacheKey(session, settings, weights)
		cached, ok, err := r.cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			metrics.MatchCacheLookups.WithLabelValues("error").Inc()
			r.logger.Warn("match cache read failed", zap.String("session_id", session.ID), zap.Error(err))
		case ok:
			metrics.MatchCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.MatchCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	sp, err := r.sessionVectors.Build(ctx, session, weights)
	if err != nil {
		return nil, fmt.Errorf("build session vectors: %w", err)
	}
	candidates, err := r.photographers.ListComplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("list photographers: %w", err)
	}
	eligible, _ := r.filters.Apply(candidates, session, settings)

	ids := make([]string, len(eligible))
	for i, p := range eligible {
		ids[i] = p.PhotographerID
	}
	profileVectors, err := r.vectors.GetMany(ctx, domain.JobTypePhotographerProfile, ids)
	if err != nil {
		return nil, fmt.Errorf("load profile vectors: %w", err)
	}

	results := make([]domain.MatchResult, 0, len(eligible))
	incomplete, belowMin := 0, 0
	for _, p := range eligible {
		score := r.scoring.Score(sp.Vectors, profileVectors[p.PhotographerID], weights, sp.Keywords, p.Keywords, settings.EnableKeywordBonus)
		if score.Incomplete {
			incomplete++
			metrics.IncompleteScores.Inc()
		}
		if score.Total < settings.MinSimilarityScore {
			belowMin++
			continue
		}
		results = append(results, domain.MatchResult{PhotographerID: p.PhotographerID, Name: p.Name, Score: score})
	}
	metrics.CandidatesDropped.WithLabelValues("min_similarity").Add(float64(belowMin))

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score.Total != results[j].Score.Total {
			return results[i].Score.Total > results[j].Score.Total
		}
		return results[i].PhotographerID < results[j].PhotographerID
	})
	if len(results) > settings.MaxResults {
		results = results[:settings.MaxResults]
	}

	r.logger.Info("ranking computed",
		zap.String("session_id", session.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(eligible)),
		zap.Int("below_min", belowMin),
		zap.Int("incomplete", incomplete),
		zap.Int("returned", len(results)),
		zap.Int64("weights_generation", weights.Generation),
	)

	if cacheKey != "" {
		if err := r.cache.Set(ctx, cacheKey, results); err != nil {
			r.logger.Warn("match cache write failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return results, nil
}
