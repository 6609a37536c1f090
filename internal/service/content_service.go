package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
)

var (
	ErrContentNotFound     = errors.New("content not found")
	ErrContentInvalidInput = errors.New("content invalid input")
)

// ContentService aplica las ediciones de contenido que dejan vectores obsoletos.
// El repositorio anula el vector en la misma escritura; aca se encola la regeneracion.
type ContentService struct {
	logger        *zap.Logger
	questions     repository.QuestionRepository
	photographers repository.PhotographerRepository
	settings      repository.SettingsRepository
	queue         *EmbeddingQueue
}

func NewContentService(
	logger *zap.Logger,
	questions repository.QuestionRepository,
	photographers repository.PhotographerRepository,
	settings repository.SettingsRepository,
	queue *EmbeddingQueue,
) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{
		logger:        logger,
		questions:     questions,
		photographers: photographers,
		settings:      settings,
		queue:         queue,
	}
}

// ContentUpdate informa el job encolado, si hubo uno.
type ContentUpdate struct {
	Job *domain.EmbeddingJob `json:"job,omitempty"`
}

func (s *ContentService) UpdateQuestionText(ctx context.Context, id, text string) (ContentUpdate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ContentUpdate{}, fmt.Errorf("%w: text required", ErrContentInvalidInput)
	}
	if err := s.questions.UpdateQuestionText(ctx, id, text); err != nil {
		return ContentUpdate{}, contentError("question", err)
	}
	return s.refresh(ctx, domain.JobTypeQuestion, id)
}

func (s *ContentService) UpdateChoiceLabel(ctx context.Context, id, label string, keywords []string) (ContentUpdate, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return ContentUpdate{}, fmt.Errorf("%w: label required", ErrContentInvalidInput)
	}
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if err := s.questions.UpdateChoice(ctx, id, label, cleaned); err != nil {
		return ContentUpdate{}, contentError("choice", err)
	}
	return s.refresh(ctx, domain.JobTypeChoice, id)
}

func (s *ContentService) UpdateImage(ctx context.Context, id, url, description string) (ContentUpdate, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return ContentUpdate{}, fmt.Errorf("%w: url required", ErrContentInvalidInput)
	}
	if err := s.questions.UpdateImage(ctx, id, url, strings.TrimSpace(description)); err != nil {
		return ContentUpdate{}, contentError("image", err)
	}
	return s.refresh(ctx, domain.JobTypeImage, id)
}

// UpdateProfileDescriptions reemplaza las cuatro descripciones. Un perfil incompleto queda sin
// vectores y sin job hasta que se complete.
func (s *ContentService) UpdateProfileDescriptions(ctx context.Context, photographerID string, descriptions map[domain.Dimension]string) (domain.PhotographerProfile, ContentUpdate, error) {
	for d := range descriptions {
		if !d.Valid() {
			return domain.PhotographerProfile{}, ContentUpdate{}, fmt.Errorf("%w: %q", ErrUnknownDimension, string(d))
		}
	}
	profile, err := s.photographers.UpdateDescriptions(ctx, photographerID, descriptions)
	if err != nil {
		return domain.PhotographerProfile{}, ContentUpdate{}, contentError("photographer profile", err)
	}
	if !profile.ProfileCompleted {
		s.logger.Info("profile incomplete, embeddings cleared",
			zap.String("photographer_id", photographerID),
		)
		return profile, ContentUpdate{}, nil
	}
	update, err := s.refresh(ctx, domain.JobTypePhotographerProfile, photographerID)
	return profile, update, err
}

func (s *ContentService) refresh(ctx context.Context, jobType domain.JobType, id string) (ContentUpdate, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return ContentUpdate{}, fmt.Errorf("load match settings: %w", err)
	}
	if !settings.AutoRefreshEmbeddings {
		s.logger.Info("embedding invalidated without refresh",
			zap.String("job_type", string(jobType)),
			zap.String("target_id", id),
		)
		return ContentUpdate{}, nil
	}
	job, err := s.queue.Enqueue(ctx, jobType, id)
	if err != nil {
		return ContentUpdate{}, err
	}
	return ContentUpdate{Job: &job}, nil
}

func contentError(kind string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrContentNotFound, kind)
	}
	return fmt.Errorf("update %s: %w", kind, err)
}
