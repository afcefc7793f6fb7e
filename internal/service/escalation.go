package service

import (
	"strings"
	"unicode"
)

// EscalationDetector decides whether a participant message asks for a human.
type EscalationDetector interface {
	Detect(content string) bool
}

// DefaultEscalationPhrases are matched case-insensitively anywhere in a message.
var DefaultEscalationPhrases = []string{
	"talk to a person",
	"talk to a human",
	"talk to an agent",
	"talk to a specialist",
	"speak to a person",
	"speak to a human",
	"speak to an agent",
	"speak to a specialist",
	"speak with a specialist",
	"real person",
	"human agent",
	"falar com atendente",
	"falar com um atendente",
	"falar com uma pessoa",
	"falar com humano",
	"falar com um humano",
	"falar com especialista",
	"falar com um especialista",
	"atendimento humano",
}

// PhraseDetector matches a fixed list of phrases after lowercasing and
// collapsing whitespace on both sides.
type PhraseDetector struct {
	phrases []string
}

// NewPhraseDetector builds a detector; an empty list falls back to DefaultEscalationPhrases.
func NewPhraseDetector(phrases []string) *PhraseDetector {
	if len(phrases) == 0 {
		phrases = DefaultEscalationPhrases
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = normalize(p); p != "" {
			normalized = append(normalized, p)
		}
	}
	return &PhraseDetector{phrases: normalized}
}

// Detect implements EscalationDetector.
func (d *PhraseDetector) Detect(content string) bool {
	text := normalize(content)
	if text == "" {
		return false
	}
	for _, p := range d.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}
