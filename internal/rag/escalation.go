package rag

import (
	"strings"
)

// DefaultIndicators are the phrases that mark an answer as one a human
// should take over. Matching is case-insensitive substring search.
var DefaultIndicators = []string{
	"don't have information",
	"not sure",
	"cannot find",
	"no information",
	"unable to answer",
	"connect you with",
	"human agent",
	"speak to someone",
}

// Escalation reasons reported in metrics and events.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonIndicator     = "indicator"
)

// Decision is the outcome of the escalation policy.
type Decision struct {
	NeedsHuman bool
	Reason     string
}

// EscalationPolicy decides whether an answer needs a human agent.
type EscalationPolicy struct {
	threshold  float64
	indicators []string
}

// NewEscalationPolicy creates a policy escalating below threshold or on any
// indicator phrase. extra phrases are appended to DefaultIndicators.
func NewEscalationPolicy(threshold float64, extra []string) *EscalationPolicy {
	indicators := make([]string, 0, len(DefaultIndicators)+len(extra))
	indicators = append(indicators, DefaultIndicators...)
	for _, s := range extra {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			indicators = append(indicators, s)
		}
	}
	return &EscalationPolicy{threshold: threshold, indicators: indicators}
}

var defaultPolicy = NewEscalationPolicy(DefaultOptions().EscalationThreshold, nil)

// Decide applies the default policy.
func Decide(confidence float64, text string) bool {
	return defaultPolicy.Decide(confidence, text).NeedsHuman
}

// Decide escalates when confidence is below the threshold or text contains
// an indicator phrase. Low confidence is reported first when both hold.
func (p *EscalationPolicy) Decide(confidence float64, text string) Decision {
	if confidence < p.threshold {
		return Decision{NeedsHuman: true, Reason: ReasonLowConfidence}
	}
	if p.matches(text) {
		return Decision{NeedsHuman: true, Reason: ReasonIndicator}
	}
	return Decision{}
}

func (p *EscalationPolicy) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range p.indicators {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
