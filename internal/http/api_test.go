package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/llm"
	"photo-match/internal/repository"
	"photo-match/internal/service"
)

type testAPI struct {
	router        *gin.Engine
	vectors       *repository.MemoryVectorStore
	questions     *repository.MemoryQuestionRepository
	photographers *repository.MemoryPhotographerRepository
	sessions      *repository.MemorySessionRepository
	queue         *service.EmbeddingQueue
	pool          *service.WorkerPool
}

var dimensionQuestions = map[domain.Dimension]struct {
	id, key string
	weight  float64
}{
	domain.DimensionStyleEmotion:            {"q-style", "style", 0.4},
	domain.DimensionCommunicationPsychology: {"q-comm", "comm", 0.3},
	domain.DimensionPurposeStory:            {"q-purpose", "purpose", 0.2},
	domain.DimensionCompanion:               {"q-companion", "companion", 0.1},
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zap.NewNop()

	vectors := repository.NewMemoryVectorStore()
	questions := repository.NewMemoryQuestionRepository(vectors)
	answers := make(map[string]domain.Answer, len(dimensionQuestions))
	order := 1
	for _, d := range domain.AllDimensions {
		q := dimensionQuestions[d]
		questions.AddQuestion(domain.Question{ID: q.id, Key: q.key, Order: order, Type: domain.QuestionTypeSingleChoice, Dimension: d, BaseWeight: q.weight, IsActive: true})
		choiceID := "c-" + q.key
		questions.AddChoice(domain.Choice{ID: choiceID, QuestionID: q.id, Label: q.key})
		if err := vectors.Put(ctx, domain.JobTypeChoice, choiceID, repository.EntityVectors{repository.FacetDefault: pgvector.NewVector([]float32{1, 0})}); err != nil {
			t.Fatalf("put choice vector: %v", err)
		}
		answers[q.key] = domain.Answer{QuestionKey: q.key, ChoiceIDs: []string{choiceID}}
		order++
	}

	sessions := repository.NewMemorySessionRepository()
	sessions.Add(domain.MatchingSession{
		ID:            "s1",
		Answers:       answers,
		DesiredRegion: "tokyo",
		BudgetMin:     30000,
		BudgetMax:     80000,
		CreatedAt:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	})

	photographers := repository.NewMemoryPhotographerRepository(vectors)
	addProfile(t, photographers, vectors, "p-close", []float32{1, 0}, "tokyo")
	addProfile(t, photographers, vectors, "p-far", []float32{-1, 0}, "tokyo")
	addProfile(t, photographers, vectors, "p-osaka", []float32{1, 0}, "osaka")

	settingsRepo := repository.NewMemorySettingsRepository(domain.DefaultMatchSettings())
	jobs := repository.NewMemoryEmbeddingJobRepository()
	queue := service.NewEmbeddingQueue(logger, jobs, questions, photographers, 1)
	opts := service.WorkerOptions{PollInterval: 5 * time.Millisecond, BatchPollInterval: 5 * time.Millisecond, BatchTimeout: 2 * time.Second, StaleAfter: time.Minute}
	worker := service.NewEmbeddingWorker(logger, queue, &llm.MockClient{Vector: []float32{0.6, 0.8}}, vectors, questions, photographers, opts)

	weights := service.NewWeightConfigService(logger, questions)
	if _, err := weights.Load(ctx); err != nil {
		t.Fatalf("load weights: %v", err)
	}
	settings := service.NewSettingsService(logger, settingsRepo)
	ranker := service.NewMatchRanker(logger, sessions, photographers, questions, vectors, weights, service.NewMemoryMatchCache(time.Minute))
	content := service.NewContentService(logger, questions, photographers, settingsRepo, queue)

	router := NewRouter(logger,
		NewMatchHandler(logger, ranker, settings),
		NewAdminHandler(logger, weights, settings),
		NewEmbeddingHandler(logger, queue, worker, photographers),
		NewContentHandler(logger, content),
	)
	return &testAPI{
		router:        router,
		vectors:       vectors,
		questions:     questions,
		photographers: photographers,
		sessions:      sessions,
		queue:         queue,
		pool:          service.NewWorkerPool(logger, queue, opts, worker),
	}
}

func addProfile(t *testing.T, repo *repository.MemoryPhotographerRepository, vectors *repository.MemoryVectorStore, id string, vec []float32, region domain.Region) {
	t.Helper()
	descriptions := make(map[domain.Dimension]string, len(domain.AllDimensions))
	facets := make(repository.EntityVectors, len(domain.AllDimensions))
	for _, d := range domain.AllDimensions {
		descriptions[d] = id + " " + string(d)
		facets[string(d)] = pgvector.NewVector(vec)
	}
	repo.Add(domain.PhotographerProfile{
		PhotographerID: id,
		Name:           id,
		Descriptions:   descriptions,
		ServiceRegions: []domain.Region{region},
		PriceRangeMin:  50000,
		PriceRangeMax:  120000,
	})
	if err := vectors.Put(context.Background(), domain.JobTypePhotographerProfile, id, facets); err != nil {
		t.Fatalf("put profile vectors: %v", err)
	}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestRankEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/match/sessions/s1/rank", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		SessionID string               `json:"session_id"`
		Results   []domain.MatchResult `json:"results"`
	}](t, rec)
	if resp.SessionID != "s1" {
		t.Fatalf("unexpected session id %q", resp.SessionID)
	}
	if len(resp.Results) != 1 || resp.Results[0].PhotographerID != "p-close" {
		t.Fatalf("expected only p-close to match, got %+v", resp.Results)
	}
	if resp.Results[0].Score.Total < 0.99 {
		t.Fatalf("expected near perfect score, got %v", resp.Results[0].Score.Total)
	}

	rec = api.do(http.MethodPost, "/match/sessions/missing/rank", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestRankEndpointHonorsRegionToggle(t *testing.T) {
	api := newTestAPI(t)
	settings := domain.DefaultMatchSettings()
	settings.EnableRegionFilter = false

	if rec := api.do(http.MethodPut, "/admin/settings", settings); rec.Code != http.StatusOK {
		t.Fatalf("update settings: %d %s", rec.Code, rec.Body.String())
	}
	rec := api.do(http.MethodPost, "/match/sessions/s1/rank", nil)
	resp := decode[struct {
		Results []domain.MatchResult `json:"results"`
	}](t, rec)
	if len(resp.Results) != 2 || resp.Results[0].PhotographerID != "p-close" || resp.Results[1].PhotographerID != "p-osaka" {
		t.Fatalf("expected p-close and p-osaka without region filter, got %+v", resp.Results)
	}
}

func TestWeightsEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/admin/weights", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[struct {
		Weights domain.WeightSnapshot `json:"weights"`
		Warning string                `json:"warning"`
	}](t, rec)
	if got.Warning != "" || got.Weights.DimensionWeights[domain.DimensionStyleEmotion] < 0.399 {
		t.Fatalf("unexpected weights %+v warning %q", got.Weights, got.Warning)
	}

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"does not sum", map[string]any{"dimensions": map[string]float64{"style_emotion": 50, "communication_psychology": 30, "purpose_story": 20, "companion": 10}}, http.StatusBadRequest},
		{"unknown dimension", map[string]any{"dimensions": map[string]float64{"style_emotion": 40, "communication_psychology": 30, "purpose_story": 20, "budget": 10}}, http.StatusBadRequest},
		{"missing body", map[string]any{}, http.StatusBadRequest},
		{"valid", map[string]any{"dimensions": map[string]float64{"style_emotion": 25, "communication_psychology": 25, "purpose_story": 25, "companion": 25}}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(http.MethodPut, "/admin/weights", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec = api.do(http.MethodPost, "/admin/weights/refresh", nil)
	got = decode[struct {
		Weights domain.WeightSnapshot `json:"weights"`
		Warning string                `json:"warning"`
	}](t, rec)
	if w := got.Weights.DimensionWeights[domain.DimensionCompanion]; w < 0.249 || w > 0.251 {
		t.Fatalf("expected companion weight 0.25 after edit, got %v", w)
	}
}

func TestSettingsValidation(t *testing.T) {
	api := newTestAPI(t)
	settings := domain.DefaultMatchSettings()
	settings.MaxResults = 0

	rec := api.do(http.MethodPut, "/admin/settings", settings)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = api.do(http.MethodGet, "/admin/settings", nil)
	got := decode[struct {
		Settings domain.MatchSettings `json:"settings"`
	}](t, rec)
	if got.Settings.MaxResults != 10 {
		t.Fatalf("expected stored settings untouched, got %+v", got.Settings)
	}
}

func TestEmbeddingJobEndpoints(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	job, err := api.queue.Enqueue(ctx, domain.JobTypeChoice, "c-style")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec := api.do(http.MethodPost, "/admin/embeddings/jobs/"+job.ID+"/requeue", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 requeueing a pending job, got %d", rec.Code)
	}
	claimed, err := api.queue.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := api.queue.Fail(ctx, claimed.ID, claimed.LeaseID, "provider down"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec := api.do(http.MethodGet, "/admin/embeddings/jobs?status=failed", nil)
	list := decode[struct {
		Jobs []domain.EmbeddingJob `json:"jobs"`
	}](t, rec)
	if len(list.Jobs) != 1 || list.Jobs[0].LastError != "provider down" {
		t.Fatalf("expected one failed job, got %+v", list.Jobs)
	}

	rec = api.do(http.MethodPost, "/admin/embeddings/jobs/"+job.ID+"/requeue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	requeued := decode[struct {
		Job domain.EmbeddingJob `json:"job"`
	}](t, rec)
	if requeued.Job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending after requeue, got %s", requeued.Job.Status)
	}

	rec = api.do(http.MethodGet, "/admin/embeddings/stats?job_type=choice", nil)
	stats := decode[struct {
		Counts map[domain.JobStatus]int `json:"counts"`
	}](t, rec)
	if stats.Counts[domain.JobStatusPending] != 1 || stats.Counts[domain.JobStatusFailed] != 0 {
		t.Fatalf("unexpected counts %v", stats.Counts)
	}

	for _, path := range []string{"/admin/embeddings/jobs?status=stuck", "/admin/embeddings/jobs?limit=-1", "/admin/embeddings/stats?job_type=video"} {
		if rec := api.do(http.MethodGet, path, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
	if rec := api.do(http.MethodGet, "/admin/embeddings/jobs/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBatchEndpoint(t *testing.T) {
	api := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.pool.Start(ctx)

	rec := api.do(http.MethodPost, "/admin/embeddings/batch", map[string]any{"job_type": "photographer_profile", "all": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Batch service.BatchResult `json:"batch"`
	}](t, rec)
	if got.Batch.Status != service.BatchStatusComplete || got.Batch.Total != 3 || got.Batch.Completed != 3 {
		t.Fatalf("unexpected batch result %+v", got.Batch)
	}

	stored, _ := api.vectors.GetMany(context.Background(), domain.JobTypePhotographerProfile, []string{"p-far"})
	if v := stored["p-far"][string(domain.DimensionCompanion)].Slice(); len(v) != 2 || v[0] != 0.6 {
		t.Fatalf("expected regenerated vector, got %v", v)
	}

	cases := []map[string]any{
		{"job_type": "video", "target_ids": []string{"x"}},
		{"job_type": "choice", "all": true},
		{"job_type": "choice"},
	}
	for _, body := range cases {
		if rec := api.do(http.MethodPost, "/admin/embeddings/batch", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestContentEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPut, "/admin/choices/c-comm", map[string]any{"label": "Quiet", "keywords": []string{"calm"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	update := decode[service.ContentUpdate](t, rec)
	if update.Job == nil || update.Job.TargetID != "c-comm" {
		t.Fatalf("expected choice job, got %+v", update.Job)
	}

	if rec := api.do(http.MethodPut, "/admin/choices/c-missing", map[string]any{"label": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := api.do(http.MethodPut, "/admin/questions/q-comm/text", map[string]any{"text": "   "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", rec.Code)
	}
	if rec := api.do(http.MethodPut, "/admin/images/img-missing", map[string]any{"url": "https://cdn.example/a.jpg"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown image, got %d", rec.Code)
	}

	rec = api.do(http.MethodPut, "/admin/photographers/p-close/descriptions", map[string]any{
		"descriptions": map[string]string{"style_emotion": "soft film", "unknown": "x"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown dimension, got %d", rec.Code)
	}

	rec = api.do(http.MethodPut, "/admin/photographers/p-close/descriptions", map[string]any{
		"descriptions": map[string]string{"style_emotion": "soft film"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Profile domain.PhotographerProfile `json:"profile"`
		Job     *domain.EmbeddingJob       `json:"job"`
	}](t, rec)
	if got.Profile.ProfileCompleted || got.Job != nil {
		t.Fatalf("expected incomplete profile without job, got %+v", got)
	}

	rec = api.do(http.MethodPost, "/match/sessions/s1/rank", nil)
	resp := decode[struct {
		Results []domain.MatchResult `json:"results"`
	}](t, rec)
	if len(resp.Results) != 0 {
		t.Fatalf("expected incomplete profile excluded, got %+v", resp.Results)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	if rec := api.do(http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
