package hybrid

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"FinHybrid/internal/domain/models"
)

// DetectionThreshold is the similarity a template must exceed to be reported.
const DetectionThreshold = 0.7

// PatternTemplate is a named 2-row waveform: price shape, then volume shape.
type PatternTemplate struct {
	Name   string      `yaml:"name" json:"name" validate:"required"`
	Matrix [][]float64 `yaml:"matrix" json:"matrix" validate:"required,min=1,dive,min=1"`
}

type templateFile struct {
	Templates []PatternTemplate `yaml:"templates" validate:"required,min=1,dive"`
}

// DefaultTemplates returns the built-in chart formations in detection order.
func DefaultTemplates() []PatternTemplate {
	return []PatternTemplate{
		{Name: "head_and_shoulders", Matrix: [][]float64{
			{0.2, 0.5, 0.3, 0.8, 0.3, 0.5, 0.2},
			{0.6, 0.5, 0.4, 0.7, 0.4, 0.3, 0.2},
		}},
		{Name: "double_top", Matrix: [][]float64{
			{0.2, 0.8, 0.5, 0.8, 0.2},
			{0.5, 0.7, 0.4, 0.6, 0.5},
		}},
		{Name: "double_bottom", Matrix: [][]float64{
			{0.8, 0.2, 0.5, 0.2, 0.8},
			{0.5, 0.7, 0.4, 0.6, 0.5},
		}},
		{Name: "ascending_triangle", Matrix: [][]float64{
			{0.2, 0.8, 0.4, 0.8, 0.6, 0.8},
			{0.7, 0.6, 0.5, 0.4, 0.3, 0.5},
		}},
		{Name: "descending_triangle", Matrix: [][]float64{
			{0.8, 0.2, 0.6, 0.2, 0.4, 0.2},
			{0.7, 0.6, 0.5, 0.4, 0.3, 0.5},
		}},
	}
}

// ParseTemplates decodes a YAML document of the form `templates: [{name, matrix}]`.
func ParseTemplates(data []byte) ([]PatternTemplate, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("validate templates: %w", err)
	}
	return f.Templates, nil
}

// LoadTemplates reads a template table from a YAML file.
func LoadTemplates(path string) ([]PatternTemplate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseTemplates(b)
}

// Similarity is the mean of exp(-|f-t|) over the overlapping cells of features and template.
// It returns 0 when the two do not overlap.
func Similarity(features, template [][]float64) float64 {
	rows := min(len(features), len(template))
	sum, n := 0.0, 0
	for r := 0; r < rows; r++ {
		cols := min(len(features[r]), len(template[r]))
		for c := 0; c < cols; c++ {
			sum += math.Exp(-math.Abs(features[r][c] - template[r][c]))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type PatternRecognizer struct {
	templates []PatternTemplate
}

func NewPatternRecognizer(templates []PatternTemplate) *PatternRecognizer {
	return &PatternRecognizer{templates: append([]PatternTemplate(nil), templates...)}
}

// Detect scores every template against features and keeps those above DetectionThreshold, in table order.
func (r *PatternRecognizer) Detect(features [][]float64) []models.DetectedPattern {
	out := make([]models.DetectedPattern, 0)
	for _, t := range r.templates {
		if s := Similarity(features, t.Matrix); s > DetectionThreshold {
			out = append(out, models.DetectedPattern{Name: t.Name, Confidence: s})
		}
	}
	return out
}

func (r *PatternRecognizer) Templates() []PatternTemplate {
	return append([]PatternTemplate(nil), r.templates...)
}
