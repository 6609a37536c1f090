package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"photo-match/internal/domain"
)

// Implementaciones en memoria de los repositorios de lectura. Se usan en tests y en cmd/match_check;
// devuelven pgx.ErrNoRows igual que las versiones Pg para que los servicios mapeen errores igual.

type MemoryQuestionRepository struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	choices   map[string]domain.Choice
	images    map[string]domain.Image
	vectors   VectorStore
}

// NewMemoryQuestionRepository recibe el VectorStore para poder anular vectores en cada edicion.
func NewMemoryQuestionRepository(vectors VectorStore) *MemoryQuestionRepository {
	return &MemoryQuestionRepository{
		questions: make(map[string]domain.Question),
		choices:   make(map[string]domain.Choice),
		images:    make(map[string]domain.Image),
		vectors:   vectors,
	}
}

func (m *MemoryQuestionRepository) AddQuestion(q domain.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
}

func (m *MemoryQuestionRepository) AddChoice(c domain.Choice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.choices[c.ID] = c
}

func (m *MemoryQuestionRepository) AddImage(img domain.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.ID] = img
}

func (m *MemoryQuestionRepository) ListActive(_ context.Context) ([]domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Question
	for _, q := range m.questions {
		if q.IsActive {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryQuestionRepository) GetByID(_ context.Context, id string) (domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return domain.Question{}, pgx.ErrNoRows
	}
	return q, nil
}

func (m *MemoryQuestionRepository) GetChoice(_ context.Context, id string) (domain.Choice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.choices[id]
	if !ok {
		return domain.Choice{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *MemoryQuestionRepository) GetImage(_ context.Context, id string) (domain.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	if !ok {
		return domain.Image{}, pgx.ErrNoRows
	}
	return img, nil
}

func (m *MemoryQuestionRepository) ListChoices(_ context.Context, ids []string) ([]domain.Choice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Choice
	for _, id := range ids {
		if c, ok := m.choices[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryQuestionRepository) ListImages(_ context.Context, ids []string) ([]domain.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Image
	for _, id := range ids {
		if img, ok := m.images[id]; ok {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryQuestionRepository) ReplaceWeights(_ context.Context, weights map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range weights {
		if _, ok := m.questions[id]; !ok {
			return pgx.ErrNoRows
		}
	}
	for id, w := range weights {
		q := m.questions[id]
		q.BaseWeight = w
		m.questions[id] = q
	}
	return nil
}

func (m *MemoryQuestionRepository) UpdateQuestionText(ctx context.Context, id, text string) error {
	m.mu.Lock()
	q, ok := m.questions[id]
	if !ok {
		m.mu.Unlock()
		return pgx.ErrNoRows
	}
	q.Text = text
	q.EmbeddingGeneratedAt = nil
	m.questions[id] = q
	m.mu.Unlock()
	return m.vectors.Delete(ctx, domain.JobTypeQuestion, id)
}

func (m *MemoryQuestionRepository) UpdateChoice(ctx context.Context, id, label string, keywords []string) error {
	m.mu.Lock()
	c, ok := m.choices[id]
	if !ok {
		m.mu.Unlock()
		return pgx.ErrNoRows
	}
	c.Label = label
	c.Keywords = keywords
	c.EmbeddingGeneratedAt = nil
	m.choices[id] = c
	m.mu.Unlock()
	return m.vectors.Delete(ctx, domain.JobTypeChoice, id)
}

func (m *MemoryQuestionRepository) UpdateImage(ctx context.Context, id, url, description string) error {
	m.mu.Lock()
	img, ok := m.images[id]
	if !ok {
		m.mu.Unlock()
		return pgx.ErrNoRows
	}
	img.URL = url
	img.Description = description
	img.EmbeddingGeneratedAt = nil
	m.images[id] = img
	m.mu.Unlock()
	return m.vectors.Delete(ctx, domain.JobTypeImage, id)
}

func (m *MemoryQuestionRepository) MarkEmbedded(_ context.Context, kind domain.JobType, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case domain.JobTypeQuestion:
		if q, ok := m.questions[id]; ok {
			q.EmbeddingGeneratedAt = &at
			m.questions[id] = q
		}
	case domain.JobTypeChoice:
		if c, ok := m.choices[id]; ok {
			c.EmbeddingGeneratedAt = &at
			m.choices[id] = c
		}
	case domain.JobTypeImage:
		if img, ok := m.images[id]; ok {
			img.EmbeddingGeneratedAt = &at
			m.images[id] = img
		}
	}
	return nil
}

type MemoryPhotographerRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.PhotographerProfile
	vectors  VectorStore
}

func NewMemoryPhotographerRepository(vectors VectorStore) *MemoryPhotographerRepository {
	return &MemoryPhotographerRepository{
		profiles: make(map[string]domain.PhotographerProfile),
		vectors:  vectors,
	}
}

// Add guarda el perfil recalculando ProfileCompleted.
func (m *MemoryPhotographerRepository) Add(p domain.PhotographerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ProfileCompleted = p.IsComplete()
	m.profiles[p.PhotographerID] = p
}

func (m *MemoryPhotographerRepository) ListComplete(_ context.Context) ([]domain.PhotographerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PhotographerProfile
	for _, p := range m.profiles {
		if p.ProfileCompleted {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhotographerID < out[j].PhotographerID })
	return out, nil
}

func (m *MemoryPhotographerRepository) ListIDs(_ context.Context, completeOnly bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, p := range m.profiles {
		if completeOnly && !p.ProfileCompleted {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryPhotographerRepository) GetByID(_ context.Context, photographerID string) (domain.PhotographerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[photographerID]
	if !ok {
		return domain.PhotographerProfile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *MemoryPhotographerRepository) UpdateDescriptions(ctx context.Context, photographerID string, descriptions map[domain.Dimension]string) (domain.PhotographerProfile, error) {
	m.mu.Lock()
	p, ok := m.profiles[photographerID]
	if !ok {
		m.mu.Unlock()
		return domain.PhotographerProfile{}, pgx.ErrNoRows
	}
	p.Descriptions = make(map[domain.Dimension]string, len(domain.AllDimensions))
	for _, d := range domain.AllDimensions {
		p.Descriptions[d] = strings.TrimSpace(descriptions[d])
	}
	p.ProfileCompleted = p.IsComplete()
	p.EmbeddingsGeneratedAt = nil
	p.UpdatedAt = time.Now().UTC()
	m.profiles[photographerID] = p
	m.mu.Unlock()
	if err := m.vectors.Delete(ctx, domain.JobTypePhotographerProfile, photographerID); err != nil {
		return domain.PhotographerProfile{}, err
	}
	return p, nil
}

func (m *MemoryPhotographerRepository) MarkEmbeddingsGenerated(_ context.Context, photographerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[photographerID]; ok {
		p.EmbeddingsGeneratedAt = &at
		m.profiles[photographerID] = p
	}
	return nil
}

type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.MatchingSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domain.MatchingSession)}
}

func (m *MemorySessionRepository) Add(s domain.MatchingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemorySessionRepository) GetByID(_ context.Context, id string) (domain.MatchingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.MatchingSession{}, pgx.ErrNoRows
	}
	return s, nil
}

type MemorySettingsRepository struct {
	mu       sync.RWMutex
	settings domain.MatchSettings
}

func NewMemorySettingsRepository(initial domain.MatchSettings) *MemorySettingsRepository {
	return &MemorySettingsRepository{settings: initial}
}

func (m *MemorySettingsRepository) Get(_ context.Context) (domain.MatchSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *MemorySettingsRepository) Save(_ context.Context, s domain.MatchSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}
