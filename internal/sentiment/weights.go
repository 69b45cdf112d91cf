package sentiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights holds every tunable constant of the lexical scorer. The defaults are
// hand-tuned, not derived; deployments may override any subset from YAML.
type Weights struct {
	ProfanityBase    int `yaml:"profanity_base"`
	ProfanityPerTerm int `yaml:"profanity_per_term"`
	NegativeWord     int `yaml:"negative_word"`
	NegativeContext  int `yaml:"negative_context"`
	UrgencyKeyword   int `yaml:"urgency_keyword"`
	Insult           int `yaml:"insult"`
	Refund           int `yaml:"refund"`

	CapsHigh        int     `yaml:"caps_high"`
	CapsHighRatio   float64 `yaml:"caps_high_ratio"`
	CapsMedium      int     `yaml:"caps_medium"`
	CapsMediumRatio float64 `yaml:"caps_medium_ratio"`

	Exclamation          int `yaml:"exclamation"`
	ExclamationThreshold int `yaml:"exclamation_threshold"`

	// confidence buckets: high when score > HighConfidenceAbove,
	// medium when score >= MediumConfidenceFrom
	HighConfidenceAbove  int `yaml:"high_confidence_above"`
	MediumConfidenceFrom int `yaml:"medium_confidence_from"`

	UrgencyPerKeyword int `yaml:"urgency_per_keyword"`
	UrgencyPerRefund  int `yaml:"urgency_per_refund"`
	UrgencyShouting   int `yaml:"urgency_shouting"`
	UrgencyExclaimed  int `yaml:"urgency_exclaimed"`

	// excerpt window half-widths in bytes
	ProfanityWindow int `yaml:"profanity_window"`
	NegativeWindow  int `yaml:"negative_window"`
	ContextWindow   int `yaml:"context_window"`
}

func DefaultWeights() Weights {
	return Weights{
		ProfanityBase:    20,
		ProfanityPerTerm: 10,
		NegativeWord:     5,
		NegativeContext:  15,
		UrgencyKeyword:   10,
		Insult:           15,
		Refund:           20,

		CapsHigh:        25,
		CapsHighRatio:   0.5,
		CapsMedium:      15,
		CapsMediumRatio: 0.3,

		Exclamation:          10,
		ExclamationThreshold: 3,

		HighConfidenceAbove:  70,
		MediumConfidenceFrom: 40,

		UrgencyPerKeyword: 20,
		UrgencyPerRefund:  15,
		UrgencyShouting:   10,
		UrgencyExclaimed:  10,

		ProfanityWindow: 30,
		NegativeWindow:  20,
		ContextWindow:   10,
	}
}

// LoadWeights reads a YAML file over the defaults, so the file only needs the
// keys it changes. An empty path returns the defaults.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("reading weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("parsing weights file: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, fmt.Errorf("invalid weights file %s: %w", path, err)
	}
	return w, nil
}

func (w Weights) Validate() error {
	ints := map[string]int{
		"profanity_base":        w.ProfanityBase,
		"profanity_per_term":    w.ProfanityPerTerm,
		"negative_word":         w.NegativeWord,
		"negative_context":      w.NegativeContext,
		"urgency_keyword":       w.UrgencyKeyword,
		"insult":                w.Insult,
		"refund":                w.Refund,
		"caps_high":             w.CapsHigh,
		"caps_medium":           w.CapsMedium,
		"exclamation":           w.Exclamation,
		"exclamation_threshold": w.ExclamationThreshold,
		"profanity_window":      w.ProfanityWindow,
		"negative_window":       w.NegativeWindow,
		"context_window":        w.ContextWindow,
	}
	for name, v := range ints {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if w.CapsMediumRatio > w.CapsHighRatio {
		return fmt.Errorf("caps_medium_ratio must not exceed caps_high_ratio")
	}
	if w.MediumConfidenceFrom > w.HighConfidenceAbove {
		return fmt.Errorf("medium_confidence_from must not exceed high_confidence_above")
	}
	return nil
}
