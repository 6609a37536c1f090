package domain

import (
	"strings"
	"time"
)

// Region es un area de servicio (prefectura, ciudad) normalizada en minusculas.
type Region string

func NormalizeRegion(raw string) Region {
	return Region(strings.ToLower(strings.TrimSpace(raw)))
}

// MaxKeywordProficiency es el nivel mas alto que un fotografo puede declarar para una palabra clave.
const MaxKeywordProficiency = 5

// PhotographerProfile es el perfil unico de cada fotografo.
type PhotographerProfile struct {
	PhotographerID        string               `json:"photographer_id"`
	Name                  string               `json:"name"`
	Descriptions          map[Dimension]string `json:"descriptions"`
	ServiceRegions        []Region             `json:"service_regions"`
	PriceRangeMin         int                  `json:"price_range_min"`
	PriceRangeMax         int                  `json:"price_range_max"`
	Keywords              map[string]int       `json:"keywords,omitempty"` // palabra clave -> nivel 1..5
	ProfileCompleted      bool                 `json:"profile_completed"`
	EmbeddingsGeneratedAt *time.Time           `json:"embeddings_generated_at,omitempty"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// IsComplete es verdadero solo si las cuatro descripciones tienen contenido.
func (p PhotographerProfile) IsComplete() bool {
	for _, d := range AllDimensions {
		if strings.TrimSpace(p.Descriptions[d]) == "" {
			return false
		}
	}
	return true
}

func (p PhotographerProfile) ServesRegion(region Region) bool {
	for _, r := range p.ServiceRegions {
		if NormalizeRegion(string(r)) == region {
			return true
		}
	}
	return false
}
