package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
)

func TestWeightConfigLoad(t *testing.T) {
	repo := questionnaire(repository.NewMemoryVectorStore())
	svc := NewWeightConfigService(zap.NewNop(), repo)

	if _, ok := svc.Current(); ok {
		t.Fatalf("expected no snapshot before load")
	}
	snap, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := map[domain.Dimension]float64{
		domain.DimensionStyleEmotion:            0.4,
		domain.DimensionCommunicationPsychology: 0.3,
		domain.DimensionPurposeStory:            0.2,
		domain.DimensionCompanion:               0.1,
	}
	for d, w := range want {
		if !almostEqual(snap.DimensionWeights[d], w) {
			t.Fatalf("dimension %s: expected %.2f, got %.4f", d, w, snap.DimensionWeights[d])
		}
	}
	if _, ok := snap.QuestionWeights["q-retired"]; ok {
		t.Fatalf("inactive question must not carry weight")
	}
	if snap.Drift > 1e-9 {
		t.Fatalf("expected no drift, got %v", snap.Drift)
	}
	if snap.ActiveCounts[domain.DimensionStyleEmotion] != 2 {
		t.Fatalf("expected 2 active style questions, got %d", snap.ActiveCounts[domain.DimensionStyleEmotion])
	}
}

func TestWeightConfigLoadReportsDrift(t *testing.T) {
	repo := questionnaire(repository.NewMemoryVectorStore())
	repo.AddQuestion(domain.Question{ID: "q-extra", Key: "extra", Order: 8, Type: domain.QuestionTypeSingleChoice, Dimension: domain.DimensionCompanion, BaseWeight: 0.05, IsActive: true})
	svc := NewWeightConfigService(zap.NewNop(), repo)

	snap, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !almostEqual(snap.Drift, 0.05) {
		t.Fatalf("expected drift 0.05, got %v", snap.Drift)
	}
}

func TestSetDimensionWeightsRedistributes(t *testing.T) {
	ctx := context.Background()
	repo := questionnaire(repository.NewMemoryVectorStore())
	svc := NewWeightConfigService(zap.NewNop(), repo)
	before, _ := svc.Load(ctx)

	snap, err := svc.SetDimensionWeights(ctx, map[domain.Dimension]float64{
		domain.DimensionStyleEmotion:            50,
		domain.DimensionCommunicationPsychology: 20,
		domain.DimensionPurposeStory:            20,
		domain.DimensionCompanion:               10,
	})
	if err != nil {
		t.Fatalf("set weights: %v", err)
	}
	if !almostEqual(snap.QuestionWeights["q-style-1"], 0.25) || !almostEqual(snap.QuestionWeights["q-style-2"], 0.25) {
		t.Fatalf("expected style share split evenly, got %+v", snap.QuestionWeights)
	}
	// Proposito tiene dos preguntas activas (incluida la de texto libre).
	if !almostEqual(snap.QuestionWeights["q-purpose"], 0.1) || !almostEqual(snap.QuestionWeights["q-notes"], 0.1) {
		t.Fatalf("expected purpose share split across two questions, got %+v", snap.QuestionWeights)
	}
	if snap.Generation <= before.Generation {
		t.Fatalf("expected generation to advance")
	}
	if snap.Fingerprint == before.Fingerprint {
		t.Fatalf("expected fingerprint to change with weights")
	}

	stored, _ := repo.GetByID(ctx, "q-style-1")
	if !almostEqual(stored.BaseWeight, 0.25) {
		t.Fatalf("expected weight persisted, got %v", stored.BaseWeight)
	}
	retired, _ := repo.GetByID(ctx, "q-retired")
	if retired.BaseWeight != 0.5 {
		t.Fatalf("inactive question must keep its weight, got %v", retired.BaseWeight)
	}

	current, _ := svc.Current()
	if current.Generation != snap.Generation {
		t.Fatalf("expected new snapshot to be current")
	}
}

func TestSetDimensionWeightsRejectsAndKeepsPrevious(t *testing.T) {
	cases := []struct {
		name     string
		percents map[domain.Dimension]float64
		want     error
	}{
		{
			name: "sum below 100",
			percents: map[domain.Dimension]float64{
				domain.DimensionStyleEmotion: 40, domain.DimensionCommunicationPsychology: 30,
				domain.DimensionPurposeStory: 20, domain.DimensionCompanion: 5,
			},
			want: ErrWeightsDoNotSum,
		},
		{
			name: "sum above 100",
			percents: map[domain.Dimension]float64{
				domain.DimensionStyleEmotion: 50, domain.DimensionCommunicationPsychology: 30,
				domain.DimensionPurposeStory: 20, domain.DimensionCompanion: 10,
			},
			want: ErrWeightsDoNotSum,
		},
		{
			name: "unknown dimension",
			percents: map[domain.Dimension]float64{
				domain.DimensionStyleEmotion: 40, domain.DimensionCommunicationPsychology: 30,
				domain.DimensionPurposeStory: 20, domain.DimensionCompanion: 10, "vibes": 0,
			},
			want: ErrUnknownDimension,
		},
		{
			name: "missing dimension",
			percents: map[domain.Dimension]float64{
				domain.DimensionStyleEmotion: 60, domain.DimensionCommunicationPsychology: 30,
				domain.DimensionPurposeStory: 10,
			},
			want: ErrInvalidWeight,
		},
		{
			name: "negative share",
			percents: map[domain.Dimension]float64{
				domain.DimensionStyleEmotion: 80, domain.DimensionCommunicationPsychology: 30,
				domain.DimensionPurposeStory: 0, domain.DimensionCompanion: -10,
			},
			want: ErrInvalidWeight,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := questionnaire(repository.NewMemoryVectorStore())
			svc := NewWeightConfigService(zap.NewNop(), repo)
			before, _ := svc.Load(ctx)

			_, err := svc.SetDimensionWeights(ctx, tc.percents)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			after, _ := svc.Current()
			if after.Generation != before.Generation || after.Fingerprint != before.Fingerprint {
				t.Fatalf("expected previous snapshot to be retained")
			}
			stored, _ := repo.GetByID(ctx, "q-style-1")
			if !almostEqual(stored.BaseWeight, 0.2) {
				t.Fatalf("expected stored weights untouched, got %v", stored.BaseWeight)
			}
		})
	}
}

func TestSetDimensionWeightsDimensionWithoutQuestions(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQuestionRepository(repository.NewMemoryVectorStore())
	repo.AddQuestion(domain.Question{ID: "s", Dimension: domain.DimensionStyleEmotion, BaseWeight: 0.5, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "c", Dimension: domain.DimensionCommunicationPsychology, BaseWeight: 0.3, IsActive: true})
	repo.AddQuestion(domain.Question{ID: "p", Dimension: domain.DimensionPurposeStory, BaseWeight: 0.2, IsActive: true})
	svc := NewWeightConfigService(zap.NewNop(), repo)
	if _, err := svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err := svc.SetDimensionWeights(ctx, map[domain.Dimension]float64{
		domain.DimensionStyleEmotion: 40, domain.DimensionCommunicationPsychology: 30,
		domain.DimensionPurposeStory: 20, domain.DimensionCompanion: 10,
	})
	if !errors.Is(err, ErrDimensionWithoutQuestions) {
		t.Fatalf("expected ErrDimensionWithoutQuestions, got %v", err)
	}

	snap, err := svc.SetDimensionWeights(ctx, map[domain.Dimension]float64{
		domain.DimensionStyleEmotion: 50, domain.DimensionCommunicationPsychology: 30,
		domain.DimensionPurposeStory: 20, domain.DimensionCompanion: 0,
	})
	if err != nil {
		t.Fatalf("expected zero share for empty dimension to be accepted, got %v", err)
	}
	if snap.DimensionWeights[domain.DimensionCompanion] != 0 {
		t.Fatalf("expected companion to contribute zero, got %v", snap.DimensionWeights[domain.DimensionCompanion])
	}
}

func TestWeightConfigConcurrentReadsSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := questionnaire(repository.NewMemoryVectorStore())
	svc := NewWeightConfigService(zap.NewNop(), repo)
	if _, err := svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	splits := []map[domain.Dimension]float64{
		{domain.DimensionStyleEmotion: 40, domain.DimensionCommunicationPsychology: 30, domain.DimensionPurposeStory: 20, domain.DimensionCompanion: 10},
		{domain.DimensionStyleEmotion: 25, domain.DimensionCommunicationPsychology: 25, domain.DimensionPurposeStory: 25, domain.DimensionCompanion: 25},
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, _ := svc.Current()
				if !almostEqual(snap.MaxBaseScore(), 1) {
					t.Errorf("observed partial snapshot with total %v", snap.MaxBaseScore())
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if _, err := svc.SetDimensionWeights(ctx, splits[i%2]); err != nil {
			t.Fatalf("set weights: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
