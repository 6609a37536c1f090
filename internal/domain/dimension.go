package domain

import (
	"fmt"
	"strings"
)

// Dimension es uno de los cuatro ejes ponderados del cuestionario.
type Dimension string

const (
	DimensionStyleEmotion            Dimension = "style_emotion"
	DimensionCommunicationPsychology Dimension = "communication_psychology"
	DimensionPurposeStory            Dimension = "purpose_story"
	DimensionCompanion               Dimension = "companion"
)

// AllDimensions fija el orden de iteracion para que el scoring sea determinista.
var AllDimensions = []Dimension{
	DimensionStyleEmotion,
	DimensionCommunicationPsychology,
	DimensionPurposeStory,
	DimensionCompanion,
}

// DefaultDimensionPercents es el reparto de fabrica 40/30/20/10.
var DefaultDimensionPercents = map[Dimension]float64{
	DimensionStyleEmotion:            40,
	DimensionCommunicationPsychology: 30,
	DimensionPurposeStory:            20,
	DimensionCompanion:               10,
}

// ParseDimension normaliza y valida una categoria de peso.
func ParseDimension(raw string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown dimension %q", raw)
	}
	return d, nil
}

func (d Dimension) Valid() bool {
	switch d {
	case DimensionStyleEmotion, DimensionCommunicationPsychology, DimensionPurposeStory, DimensionCompanion:
		return true
	}
	return false
}

func (d Dimension) String() string { return string(d) }
