package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"photo-match/internal/domain"
)

// FacetDefault es la faceta de entidades con un solo vector (preguntas, opciones, imagenes).
const FacetDefault = ""

// EntityVectors agrupa los vectores de una entidad por faceta; los perfiles usan la dimension como faceta.
type EntityVectors map[string]pgvector.Vector

// VectorStore persiste embeddings por (tipo de entidad, id).
type VectorStore interface {
	// Put reemplaza atomicamente todos los vectores de la entidad.
	Put(ctx context.Context, kind domain.JobType, id string, vectors EntityVectors) error
	GetMany(ctx context.Context, kind domain.JobType, ids []string) (map[string]EntityVectors, error)
	Delete(ctx context.Context, kind domain.JobType, id string) error
}

type PgVectorStore struct {
	pool *pgxpool.Pool
}

func NewPgVectorStore(pool *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{pool: pool}
}

func (s *PgVectorStore) Put(ctx context.Context, kind domain.JobType, id string, vectors EntityVectors) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM entity_embeddings WHERE entity_type = $1 AND entity_id = $2`, string(kind), id); err != nil {
		return err
	}

	const insert = `
		INSERT INTO entity_embeddings (entity_type, entity_id, facet, embedding, generated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now().UTC()
	for facet, vec := range vectors {
		if _, err := tx.Exec(ctx, insert, string(kind), id, facet, vec, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PgVectorStore) GetMany(ctx context.Context, kind domain.JobType, ids []string) (map[string]EntityVectors, error) {
	out := make(map[string]EntityVectors, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const query = `
		SELECT entity_id, facet, embedding
		FROM entity_embeddings
		WHERE entity_type = $1 AND entity_id = ANY($2)
	`
	rows, err := s.pool.Query(ctx, query, string(kind), ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, facet string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &facet, &vec); err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = EntityVectors{}
		}
		out[id][facet] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PgVectorStore) Delete(ctx context.Context, kind domain.JobType, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM entity_embeddings WHERE entity_type = $1 AND entity_id = $2`, string(kind), id)
	return err
}

// MemoryVectorStore es un VectorStore en memoria para tests y chequeos locales.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	vectors map[domain.JobType]map[string]EntityVectors
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{vectors: make(map[domain.JobType]map[string]EntityVectors)}
}

func (s *MemoryVectorStore) Put(_ context.Context, kind domain.JobType, id string, vectors EntityVectors) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors[kind] == nil {
		s.vectors[kind] = make(map[string]EntityVectors)
	}
	cp := make(EntityVectors, len(vectors))
	for facet, v := range vectors {
		cp[facet] = v
	}
	s.vectors[kind][id] = cp
	return nil
}

func (s *MemoryVectorStore) GetMany(_ context.Context, kind domain.JobType, ids []string) (map[string]EntityVectors, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]EntityVectors, len(ids))
	for _, id := range ids {
		if v, ok := s.vectors[kind][id]; ok {
			cp := make(EntityVectors, len(v))
			for facet, vec := range v {
				cp[facet] = vec
			}
			out[id] = cp
		}
	}
	return out, nil
}

func (s *MemoryVectorStore) Delete(_ context.Context, kind domain.JobType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors[kind], id)
	return nil
}
