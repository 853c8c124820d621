package schemas

import (
	"fmt"
	"strings"
)

// -- Submission Schemas --

// Scale bounds shared by every matrix section.
const (
	ScaleMin = 1
	ScaleMax = 10
)

// GateAnswer is the answer to a binary Si/No question.
type GateAnswer string

const (
	GateYes GateAnswer = "Si"
	GateNo  GateAnswer = "No"
)

// ParseGateAnswer accepts "si"/"no" in any case, with or without accent.
func ParseGateAnswer(s string) (GateAnswer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "si", "sí":
		return GateYes, nil
	case "no":
		return GateNo, nil
	}
	return "", fmt.Errorf("invalid gate answer %q: expected Si or No", s)
}

// Submission is the validated answer payload for one run of one form variant.
// It is consumed once by a runner and never mutated by it.
type Submission struct {
	Variant            string                `json:"variant"`
	Identification     map[string]string     `json:"identification"`
	Recommendation     int                   `json:"recommendation"`
	RecommendationText string                `json:"recommendation_text,omitempty"`
	Satisfaction       int                   `json:"satisfaction"`
	SatisfactionText   string                `json:"satisfaction_text,omitempty"`
	Sections           map[string][]int      `json:"sections,omitempty"`
	Gates              map[string]GateAnswer `json:"gates,omitempty"`
	ComplaintChannels  []string              `json:"complaint_channels,omitempty"`
	Suggestions        string                `json:"suggestions,omitempty"`
}

// Gate returns the answer recorded for a gate, defaulting to No when absent.
func (s Submission) Gate(name string) GateAnswer {
	if a, ok := s.Gates[name]; ok {
		return a
	}
	return GateNo
}
