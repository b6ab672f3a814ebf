// Package questions generates interview questions and evaluates answers
// with a chat-completions model, falling back to fixed lists when the model
// is unavailable.
package questions

import (
	"fmt"
	"strings"
)

type Level string

const (
	LevelFresher      Level = "fresher"
	LevelIntermediate Level = "intermediate"
	LevelSenior       Level = "senior"
)

func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelFresher, LevelIntermediate, LevelSenior:
		return l, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is immutable once generated.
type Question struct {
	Text       string     `json:"question"`
	Difficulty Difficulty `json:"difficulty"`
}

// Evaluation is the model's verdict on one answer.
type Evaluation struct {
	Score        int      `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

var fallbackEvaluation = Evaluation{
	Score:        7,
	Feedback:     "Answer received. Please continue to the next question.",
	Strengths:    []string{"Good communication"},
	Improvements: []string{"Provide more specific examples"},
}

var fallbackQuestions = map[string][]Question{
	"Frontend Developer": {
		{"Explain the difference between let, const, and var in JavaScript.", DifficultyMedium},
		{"What is the virtual DOM in React?", DifficultyMedium},
		{"How do you optimize a website's performance?", DifficultyHard},
	},
	"Backend Developer": {
		{"Explain REST API principles.", DifficultyMedium},
		{"What is database indexing?", DifficultyMedium},
		{"How do you handle authentication in web applications?", DifficultyHard},
	},
	"Full Stack Developer": {
		{"Describe the full development lifecycle of a web application.", DifficultyHard},
		{"How do you ensure data security?", DifficultyHard},
		{"Explain microservices architecture.", DifficultyHard},
	},
}

var genericQuestions = []Question{
	{"Tell me about yourself.", DifficultyEasy},
	{"What are your strengths?", DifficultyEasy},
	{"Why do you want this job?", DifficultyEasy},
}

// Fallback returns the built-in questions for role.
func Fallback(role string) []Question {
	qs, ok := fallbackQuestions[role]
	if !ok {
		qs = genericQuestions
	}
	return append([]Question(nil), qs...)
}

// FallbackEvaluation is returned whenever an answer cannot be evaluated.
func FallbackEvaluation() Evaluation {
	e := fallbackEvaluation
	e.Strengths = append([]string(nil), e.Strengths...)
	e.Improvements = append([]string(nil), e.Improvements...)
	return e
}
