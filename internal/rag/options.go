// Package rag implements the answering pipeline pieces that sit between the
// knowledge store and the language model: retrieval with confidence
// scoring, prompt assembly, generation and the escalation policy.
package rag

// Options tunes the answering pipeline. Zero fields fall back to the
// defaults in DefaultOptions.
type Options struct {
	// TopK is the number of nearest neighbours fetched per query.
	TopK int `yaml:"top_k"`

	// RelevanceFloor drops results below this similarity from the prompt
	// context. A result exactly at the floor is kept.
	RelevanceFloor float64 `yaml:"relevance_floor"`

	// ConfidenceScale multiplies the mean similarity of the unfiltered
	// results before clamping to 1.
	ConfidenceScale float64 `yaml:"confidence_scale"`

	// EscalationThreshold is the confidence below which a conversation is
	// handed to a human.
	EscalationThreshold float64 `yaml:"escalation_threshold"`

	// ExtraIndicators are appended to the built-in escalation phrases.
	ExtraIndicators []string `yaml:"extra_indicators"`

	// HistoryTurns is how many prior turns are loaded for the prompt, at
	// most MaxHistoryTurns.
	HistoryTurns int `yaml:"history_turns"`

	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// SourceLimit is how many retrieval results are attached to an answer.
	SourceLimit int `yaml:"source_limit"`

	// ExcerptLength caps the stored excerpt of each attached source, in runes.
	ExcerptLength int `yaml:"excerpt_length"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TopK:                5,
		RelevanceFloor:      0.3,
		ConfidenceScale:     1.5,
		EscalationThreshold: 0.4,
		HistoryTurns:        MaxHistoryTurns,
		Model:               "gpt-4o-mini",
		MaxTokens:           500,
		Temperature:         0.7,
		SourceLimit:         3,
		ExcerptLength:       200,
	}
}

// WithDefaults returns o with every zero field replaced by its default.
// Temperature 0 is a valid setting and is kept.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.RelevanceFloor == 0 {
		o.RelevanceFloor = d.RelevanceFloor
	}
	if o.ConfidenceScale <= 0 {
		o.ConfidenceScale = d.ConfidenceScale
	}
	if o.EscalationThreshold == 0 {
		o.EscalationThreshold = d.EscalationThreshold
	}
	if o.HistoryTurns <= 0 || o.HistoryTurns > MaxHistoryTurns {
		o.HistoryTurns = d.HistoryTurns
	}
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.SourceLimit <= 0 {
		o.SourceLimit = d.SourceLimit
	}
	if o.ExcerptLength <= 0 {
		o.ExcerptLength = d.ExcerptLength
	}
	return o
}
