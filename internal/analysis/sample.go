package analysis

import (
	"math"
	"time"
)

const (
	DefaultScore = 5
	MinScore     = 0
	MaxScore     = 10
)

// Sample is the running analysis state shown to the candidate.
type Sample struct {
	ConfidenceScore int       `json:"confidence_score"`
	Feedback        []string  `json:"feedback"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

func defaultSample() Sample {
	return Sample{ConfidenceScore: DefaultScore, Feedback: []string{}}
}

func (s Sample) clone() Sample {
	s.Feedback = append([]string{}, s.Feedback...)
	return s
}

func clampScore(v float64) int {
	score := int(math.Round(v))
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
