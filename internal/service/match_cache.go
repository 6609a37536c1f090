package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"photo-match/internal/domain"
)

// MatchCache guarda rankings ya calculados. La clave incluye la huella de pesos y los ajustes,
// asi que un cambio de configuracion nunca devuelve un ranking viejo.
type MatchCache interface {
	Get(ctx context.Context, key string) ([]domain.MatchResult, bool, error)
	Set(ctx context.Context, key string, results []domain.MatchResult) error
}

// MatchCacheKey arma la clave de un ranking. Ademas del id incluye el contenido de la sesion,
// asi que editar respuestas, region o presupuesto produce otra clave.
func MatchCacheKey(session domain.MatchingSession, settings domain.MatchSettings, weights domain.WeightSnapshot) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%g|%t|%t|%t", settings.MaxResults, settings.MinSimilarityScore,
		settings.EnableKeywordBonus, settings.EnableRegionFilter, settings.EnableBudgetFilter)
	return session.ID + ":" + weights.Fingerprint + ":" + strconv.FormatUint(h.Sum64(), 16) + ":" + sessionDigest(session)
}

// sessionDigest resume respuestas y filtros duros sin depender del orden del mapa ni de los ids.
func sessionDigest(session domain.MatchingSession) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d", session.DesiredRegion, session.BudgetMin, session.BudgetMax)
	keys := make([]string, 0, len(session.Answers))
	for k := range session.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a := session.Answers[k]
		choices := append([]string(nil), a.ChoiceIDs...)
		images := append([]string(nil), a.ImageIDs...)
		sort.Strings(choices)
		sort.Strings(images)
		fmt.Fprintf(h, "\x00%q|%q|%q|%q|%q", k, a.QuestionKey, choices, images, a.Text)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

type memoryMatchCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryMatchEntry
}

type memoryMatchEntry struct {
	results   []domain.MatchResult
	expiresAt time.Time
}

func NewMemoryMatchCache(ttl time.Duration) MatchCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &memoryMatchCache{ttl: ttl, items: make(map[string]memoryMatchEntry)}
}

func (c *memoryMatchCache) Get(_ context.Context, key string) ([]domain.MatchResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(c.items, key)
		return nil, false, nil
	}
	return cloneResults(entry.results), true, nil
}

// Set purga las entradas vencidas antes de guardar; las que nadie vuelve a leer no se acumulan.
func (c *memoryMatchCache) Set(_ context.Context, key string, results []domain.MatchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	for k, entry := range c.items {
		if now.After(entry.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = memoryMatchEntry{results: cloneResults(results), expiresAt: now.Add(c.ttl)}
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisMatchCache struct {
	client redisKV
	ttl    time.Duration
	prefix string
}

func NewRedisMatchCache(client *redis.Client, ttl time.Duration) MatchCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisMatchCache{client: client, ttl: ttl, prefix: "match:rank:"}
}

func (c *redisMatchCache) Get(ctx context.Context, key string) ([]domain.MatchResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var results []domain.MatchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false, fmt.Errorf("decode cached ranking: %w", err)
	}
	return results, true, nil
}

func (c *redisMatchCache) Set(ctx context.Context, key string, results []domain.MatchResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

func cloneResults(in []domain.MatchResult) []domain.MatchResult {
	out := make([]domain.MatchResult, len(in))
	for i, r := range in {
		out[i] = r
		if r.Score.MissingDimensions != nil {
			out[i].Score.MissingDimensions = append([]domain.Dimension(nil), r.Score.MissingDimensions...)
		}
	}
	return out
}
