package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"photo-match/internal/config"
	"photo-match/internal/domain"
	"photo-match/internal/llm"
	"photo-match/internal/repository"
	"photo-match/internal/service"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

// themeTexts son las opciones del cuestionario y las descripciones de perfil de cada estilo.
var themeTexts = map[string]map[domain.Dimension]string{
	"warm": {
		domain.DimensionStyleEmotion:            "Soft warm film tones with natural light",
		domain.DimensionCommunicationPsychology: "Gentle and reassuring, lots of small talk",
		domain.DimensionPurposeStory:            "Family memories we can look back on",
		domain.DimensionCompanion:               "Shooting with kids and grandparents",
	},
	"editorial": {
		domain.DimensionStyleEmotion:            "Sharp high-contrast editorial look",
		domain.DimensionCommunicationPsychology: "Direct, efficient and to the point",
		domain.DimensionPurposeStory:            "Portfolio images for my personal brand",
		domain.DimensionCompanion:               "Shooting alone",
	},
	"documentary": {
		domain.DimensionStyleEmotion:            "Candid documentary moments in black and white",
		domain.DimensionCommunicationPsychology: "Quiet observer who stays in the background",
		domain.DimensionPurposeStory:            "Telling the true story of the day",
		domain.DimensionCompanion:               "Shooting with a partner",
	},
}

var themeAxis = map[string][]float32{
	"warm":        {1, 0, 0},
	"editorial":   {0, 1, 0},
	"documentary": {0, 0, 1},
}

var questionWeights = map[domain.Dimension]float64{
	domain.DimensionStyleEmotion:            0.4,
	domain.DimensionCommunicationPsychology: 0.3,
	domain.DimensionPurposeStory:            0.2,
	domain.DimensionCompanion:               0.1,
}

type Scenario struct {
	Name      string
	Theme     string
	Region    domain.Region
	BudgetMin int
	BudgetMax int
	WantTop   string
}

type photographer struct {
	id       string
	theme    string
	region   domain.Region
	min, max int
}

var photographers = []photographer{
	{"p-warm", "warm", "tokyo", 50000, 150000},
	{"p-editorial", "editorial", "tokyo", 80000, 200000},
	{"p-documentary", "documentary", "osaka", 30000, 90000},
}

func main() {
	var live bool
	flag.BoolVar(&live, "live", false, "use the configured embedding provider instead of fixed vectors")
	flag.Parse()

	ctx := context.Background()
	logger := zap.NewNop()

	var embedder llm.Embedder = mockEmbedder()
	if live {
		_ = godotenv.Load()
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		embedder = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel, log.Default())
	}

	vectors := repository.NewMemoryVectorStore()
	questions := repository.NewMemoryQuestionRepository(vectors)
	profiles := repository.NewMemoryPhotographerRepository(vectors)
	sessions := repository.NewMemorySessionRepository()
	jobs := repository.NewMemoryEmbeddingJobRepository()
	queue := service.NewEmbeddingQueue(logger, jobs, questions, profiles, 3)
	worker := service.NewEmbeddingWorker(logger, queue, embedder, vectors, questions, profiles, service.WorkerOptions{})

	if err := seed(ctx, questions, profiles, queue); err != nil {
		log.Fatalf("seed: %v", err)
	}
	processed := 0
	for {
		ok, err := worker.ProcessNext(ctx)
		if err != nil {
			log.Fatalf("process embeddings: %v", err)
		}
		if !ok {
			break
		}
		processed++
	}
	counts, _ := queue.Stats(ctx, "")
	fmt.Printf("embeddings: %d jobs processed, %d failed\n\n", processed, counts[domain.JobStatusFailed])

	weights := service.NewWeightConfigService(logger, questions)
	if _, err := weights.Load(ctx); err != nil {
		log.Fatalf("load weights: %v", err)
	}
	ranker := service.NewMatchRanker(logger, sessions, profiles, questions, vectors, weights, nil)
	settings := domain.DefaultMatchSettings()

	scenarios := []Scenario{
		{Name: "Warm family session in Tokyo", Theme: "warm", Region: "tokyo", BudgetMin: 60000, BudgetMax: 100000, WantTop: "p-warm"},
		{Name: "Editorial brand session", Theme: "editorial", Region: "Tokyo", BudgetMin: 100000, BudgetMax: 150000, WantTop: "p-editorial"},
		{Name: "Documentary outside service region", Theme: "documentary", Region: "tokyo", BudgetMin: 40000, BudgetMax: 60000},
		{Name: "Documentary in Osaka", Theme: "documentary", Region: "osaka", BudgetMin: 40000, BudgetMax: 60000, WantTop: "p-documentary"},
		{Name: "Warm session below every budget", Theme: "warm", Region: "tokyo", BudgetMin: 10000, BudgetMax: 30000},
	}

	passed := 0
	for _, sc := range scenarios {
		session := domain.MatchingSession{
			ID:            uuid.NewString(),
			Answers:       answersFor(sc.Theme),
			DesiredRegion: domain.NormalizeRegion(string(sc.Region)),
			BudgetMin:     sc.BudgetMin,
			BudgetMax:     sc.BudgetMax,
			CreatedAt:     time.Now().UTC(),
		}
		sessions.Add(session)

		results, err := ranker.Rank(ctx, session.ID, settings)
		if err != nil {
			fmt.Printf("%sFAIL%s [%s] rank: %v\n\n", colorRed, colorReset, sc.Name, err)
			continue
		}
		for _, r := range results {
			fmt.Printf("  %-14s total=%.3f style=%.3f comm=%.3f purpose=%.3f companion=%.3f\n",
				r.PhotographerID, r.Score.Total, r.Score.Style, r.Score.Communication, r.Score.Purpose, r.Score.Companion)
		}

		top := ""
		if len(results) > 0 {
			top = results[0].PhotographerID
		}
		if top == sc.WantTop {
			fmt.Printf("%sPASS%s [%s] top=%q\n\n", colorGreen, colorReset, sc.Name, top)
			passed++
		} else {
			fmt.Printf("%sFAIL%s [%s] want=%q got=%q\n\n", colorRed, colorReset, sc.Name, sc.WantTop, top)
		}
	}

	fmt.Printf("Scenarios: %d/%d passed\n", passed, len(scenarios))
	if passed != len(scenarios) {
		os.Exit(1)
	}
}

func seed(ctx context.Context, questions *repository.MemoryQuestionRepository, profiles *repository.MemoryPhotographerRepository, queue *service.EmbeddingQueue) error {
	for i, d := range domain.AllDimensions {
		questionID := "q-" + d.String()
		questions.AddQuestion(domain.Question{
			ID:         questionID,
			Key:        d.String(),
			Text:       "Which option fits you best? (" + d.String() + ")",
			Order:      i + 1,
			Type:       domain.QuestionTypeSingleChoice,
			Dimension:  d,
			BaseWeight: questionWeights[d],
			IsActive:   true,
		})
		for theme, texts := range themeTexts {
			choiceID := choiceID(theme, d)
			questions.AddChoice(domain.Choice{ID: choiceID, QuestionID: questionID, Label: texts[d]})
			if _, err := queue.Enqueue(ctx, domain.JobTypeChoice, choiceID); err != nil {
				return err
			}
		}
	}
	for _, p := range photographers {
		profiles.Add(domain.PhotographerProfile{
			PhotographerID: p.id,
			Name:           p.id,
			Descriptions:   themeTexts[p.theme],
			ServiceRegions: []domain.Region{p.region},
			PriceRangeMin:  p.min,
			PriceRangeMax:  p.max,
			UpdatedAt:      time.Now().UTC(),
		})
		if _, err := queue.Enqueue(ctx, domain.JobTypePhotographerProfile, p.id); err != nil {
			return err
		}
	}
	return nil
}

func answersFor(theme string) map[string]domain.Answer {
	answers := make(map[string]domain.Answer, len(domain.AllDimensions))
	for _, d := range domain.AllDimensions {
		answers[d.String()] = domain.Answer{QuestionKey: d.String(), ChoiceIDs: []string{choiceID(theme, d)}}
	}
	return answers
}

func choiceID(theme string, d domain.Dimension) string {
	return "c-" + theme + "-" + d.String()
}

// mockEmbedder asigna a cada texto el eje de su estilo, asi los estilos distintos son ortogonales.
func mockEmbedder() *llm.MockClient {
	m := &llm.MockClient{Vector: []float32{1, 1, 1}, Vectors: make(map[string][]float32)}
	for theme, texts := range themeTexts {
		for _, text := range texts {
			m.Vectors[text] = themeAxis[theme]
		}
	}
	return m
}
