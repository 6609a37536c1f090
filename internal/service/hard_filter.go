package service

import (
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/metrics"
)

// HardFilter es un paso de exclusion no negociable aplicado antes del scoring.
type HardFilter interface {
	Name() string
	Enabled(settings domain.MatchSettings) bool
	Allows(profile domain.PhotographerProfile, session domain.MatchingSession) bool
}

// FilterStep resume la ejecucion de un paso.
type FilterStep struct {
	Name    string `json:"name"`
	Initial int    `json:"initial"`
	Dropped int    `json:"dropped"`
	Left    int    `json:"left"`
}

// HardFilterEngine combina los filtros con AND; un filtro deshabilitado no excluye a nadie.
type HardFilterEngine struct {
	logger  *zap.Logger
	filters []HardFilter
}

func NewHardFilterEngine(logger *zap.Logger, filters ...HardFilter) *HardFilterEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(filters) == 0 {
		filters = []HardFilter{RegionFilter{}, BudgetFilter{}}
	}
	return &HardFilterEngine{logger: logger, filters: filters}
}

// IsEligible es verdadero si ningun filtro habilitado rechaza al fotografo.
func (e *HardFilterEngine) IsEligible(profile domain.PhotographerProfile, session domain.MatchingSession, settings domain.MatchSettings) bool {
	for _, f := range e.filters {
		if f.Enabled(settings) && !f.Allows(profile, session) {
			return false
		}
	}
	return true
}

// Apply ejecuta los filtros en orden y devuelve los candidatos que sobreviven a todos.
func (e *HardFilterEngine) Apply(candidates []domain.PhotographerProfile, session domain.MatchingSession, settings domain.MatchSettings) ([]domain.PhotographerProfile, []FilterStep) {
	steps := make([]FilterStep, 0, len(e.filters))
	current := candidates
	for _, f := range e.filters {
		if !f.Enabled(settings) {
			e.logger.Debug("filter disabled", zap.String("filter", f.Name()))
			continue
		}
		kept := make([]domain.PhotographerProfile, 0, len(current))
		for _, p := range current {
			if f.Allows(p, session) {
				kept = append(kept, p)
			}
		}
		step := FilterStep{Name: f.Name(), Initial: len(current), Dropped: len(current) - len(kept), Left: len(kept)}
		steps = append(steps, step)
		metrics.CandidatesDropped.WithLabelValues(f.Name()).Add(float64(step.Dropped))
		e.logger.Debug("filter applied",
			zap.String("session_id", session.ID),
			zap.String("filter", step.Name),
			zap.Int("initial", step.Initial),
			zap.Int("dropped", step.Dropped),
			zap.Int("left", step.Left),
		)
		current = kept
	}
	return current, steps
}

// RegionFilter exige que el fotografo atienda la region deseada.
type RegionFilter struct{}

func (RegionFilter) Name() string { return "region" }

func (RegionFilter) Enabled(settings domain.MatchSettings) bool { return settings.EnableRegionFilter }

func (RegionFilter) Allows(profile domain.PhotographerProfile, session domain.MatchingSession) bool {
	region := domain.NormalizeRegion(string(session.DesiredRegion))
	if region == "" {
		return true
	}
	return profile.ServesRegion(region)
}

// BudgetFilter exige que el rango de precios del fotografo se cruce con el presupuesto.
// Un limite superior en cero se interpreta como abierto.
type BudgetFilter struct{}

func (BudgetFilter) Name() string { return "budget" }

func (BudgetFilter) Enabled(settings domain.MatchSettings) bool { return settings.EnableBudgetFilter }

func (BudgetFilter) Allows(profile domain.PhotographerProfile, session domain.MatchingSession) bool {
	if !session.HasBudget() {
		return true
	}
	if session.BudgetMax > 0 && profile.PriceRangeMin > session.BudgetMax {
		return false
	}
	if profile.PriceRangeMax > 0 && session.BudgetMin > profile.PriceRangeMax {
		return false
	}
	return true
}
