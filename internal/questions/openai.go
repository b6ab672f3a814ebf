package questions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-4o"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generator talks to an OpenAI-compatible chat-completions endpoint. With no
// API key every call returns the fallback content.
type Generator struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *log.Logger
}

type GeneratorOption func(*Generator)

func WithEndpoint(url string) GeneratorOption {
	return func(g *Generator) { g.endpoint = url }
}

func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

func WithLogger(l *log.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

func NewGenerator(apiKey string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		apiKey:   apiKey,
		model:    DefaultModel,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the model for count questions. Any failure yields the
// fallback list for role; the returned error is informational only.
func (g *Generator) Generate(ctx context.Context, role string, level Level, count int) ([]Question, error) {
	if count <= 0 {
		count = 10
	}
	prompt := fmt.Sprintf(`Generate %d interview questions for a %s position at %s level.
Return as a JSON array of objects with format:
[{"question": "question text", "difficulty": "easy|medium|hard"}]

Role: %s
Level: %s

Make questions relevant to the role and appropriate for the experience level.`,
		count, role, level, role, level)

	content, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.Error("question generation failed", "role", role, "err", err)
		return Fallback(role), err
	}

	var qs []Question
	if err := json.Unmarshal([]byte(cleanJSON(content)), &qs); err != nil {
		g.logger.Error("question generation returned malformed JSON", "role", role, "err", err)
		return Fallback(role), fmt.Errorf("malformed questions: %w", err)
	}
	qs = filterBlank(qs)
	if len(qs) == 0 {
		return Fallback(role), errors.New("model returned no questions")
	}
	return qs, nil
}

// Evaluate scores an answer from 1 to 10. Any failure yields the fixed
// fallback evaluation.
func (g *Generator) Evaluate(ctx context.Context, question, answer string) (Evaluation, error) {
	prompt := fmt.Sprintf(`Evaluate this interview answer and provide feedback:

Question: %q
Answer: %q

Provide evaluation as JSON:
{
  "score": number (1-10),
  "feedback": "detailed feedback",
  "strengths": ["strength1", "strength2"],
  "improvements": ["improvement1", "improvement2"]
}`, question, answer)

	content, err := g.complete(ctx, prompt)
	if err != nil {
		g.logger.Error("answer evaluation failed", "err", err)
		return FallbackEvaluation(), err
	}

	var e Evaluation
	if err := json.Unmarshal([]byte(cleanJSON(content)), &e); err != nil {
		g.logger.Error("answer evaluation returned malformed JSON", "err", err)
		return FallbackEvaluation(), fmt.Errorf("malformed evaluation: %w", err)
	}
	switch {
	case e.Score < 1:
		e.Score = 1
	case e.Score > 10:
		e.Score = 10
	}
	return e, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", errors.New("no API key configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API error: status %d, body: %s", resp.StatusCode, raw)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("chat API error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cr.Choices[0].Message.Content, nil
}

// cleanJSON strips markdown code fences around a JSON payload.
func cleanJSON(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func filterBlank(qs []Question) []Question {
	out := qs[:0]
	for _, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		if q.Difficulty == "" {
			q.Difficulty = DifficultyMedium
		}
		out = append(out, q)
	}
	return out
}
