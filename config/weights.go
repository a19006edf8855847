package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/evalmesh/core"
)

// WeightPolicy maps a prompt category to per-metric aggregation weights.
// A metric absent from a category's map does not participate in that
// category's aggregate score at all; a metric present but FAILED at runtime
// is dropped and the remaining weights are renormalized.
type WeightPolicy map[core.PromptCategory]map[core.Metric]float64

// DefaultWeights returns the built-in scoring policy per category.
func DefaultWeights() WeightPolicy {
	return WeightPolicy{
		core.CategoryInformation: {
			core.MetricTokenUsage:         0.15,
			core.MetricInformationDensity: 0.20,
			core.MetricConsistency:        0.20,
			core.MetricModelVariance:      0.15,
			core.MetricHallucination:      0.15,
			core.MetricRelevance:          0.15,
		},
		core.CategoryCreativeText: {
			core.MetricTokenUsage:         0.25,
			core.MetricInformationDensity: 0.25,
			core.MetricModelVariance:      0.25,
			core.MetricRelevance:          0.25,
		},
		core.CategoryCreativeImage: {
			core.MetricTokenUsage:    0.30,
			core.MetricConsistency:   0.30,
			core.MetricModelVariance: 0.20,
			core.MetricRelevance:     0.20,
		},
	}
}

// weightsFile is the YAML on-disk shape of a weight policy.
type weightsFile struct {
	Categories map[string]map[string]float64 `yaml:"categories"`
}

// LoadWeights reads a weight policy from a YAML file. Unknown categories or
// metrics are rejected so typos do not silently drop weights.
func LoadWeights(path string) (WeightPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var file weightsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}

	policy := WeightPolicy{}
	for cat, metrics := range file.Categories {
		category := core.PromptCategory(cat)
		if !category.Valid() {
			return nil, fmt.Errorf("weights file: unknown category %q", cat)
		}
		policy[category] = map[core.Metric]float64{}
		for name, weight := range metrics {
			metric := core.Metric(name)
			if !knownMetric(metric) {
				return nil, fmt.Errorf("weights file: unknown metric %q", name)
			}
			if weight < 0 {
				return nil, fmt.Errorf("weights file: negative weight for %q", name)
			}
			policy[category][metric] = weight
		}
	}

	return policy, nil
}

func knownMetric(m core.Metric) bool {
	for _, known := range core.Metrics {
		if m == known {
			return true
		}
	}
	return false
}
