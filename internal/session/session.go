// Package session composes frame analysis, speech capture and the answer
// ledger into one interview session with a single teardown path.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/analysis"
	"github.com/amanullahtanweer/interview-rehearsal/internal/answers"
	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/amanullahtanweer/interview-rehearsal/internal/speech"
	"github.com/charmbracelet/log"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session has ended")
	ErrNoAnswer = errors.New("no answer recorded for question")
)

// Session is the interview being rehearsed.
type Session struct {
	ID        string               `json:"id"`
	Role      string               `json:"role"`
	Level     questions.Level      `json:"level"`
	Questions []questions.Question `json:"questions"`
	CreatedAt time.Time            `json:"created_at"`
}

// Evaluator scores a recorded answer.
type Evaluator interface {
	Evaluate(ctx context.Context, question, answer string) (questions.Evaluation, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Capturer  analysis.Capturer
	Analyzer  analysis.Analyzer
	Speech    speech.Capability
	Evaluator Evaluator
	Logger    *log.Logger
}

// Config tunes every session created with it.
type Config struct {
	Interval        time.Duration
	RequestTimeout  time.Duration
	SkipIfPending   bool
	Language        string
	SampleRate      int
	OutputDir       string
	SaveTranscripts bool
	NewTicker       analysis.TickerFunc

	// MaxFrameDimension caps uploaded frame width and height.
	MaxFrameDimension int

	// IdleTimeout ends a session that sees no requests or audio for this
	// long, unless it is recording or has a live subscriber. Zero disables
	// it.
	IdleTimeout time.Duration
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	SessionID       string                 `json:"session_id"`
	Role            string                 `json:"role"`
	Level           questions.Level        `json:"level"`
	Index           int                    `json:"index"`
	Total           int                    `json:"total"`
	Question        *questions.Question    `json:"question,omitempty"`
	ConfidenceScore int                    `json:"confidence_score"`
	Feedback        []string               `json:"feedback"`
	Transcript      speech.TranscriptState `json:"transcript"`
	Display         string                 `json:"display"`
	Listening       bool                   `json:"listening"`
	Recording       bool                   `json:"recording"`
	Analyzing       bool                   `json:"analyzing"`
	Answers         []answers.Entry        `json:"answers"`
	Active          bool                   `json:"active"`
	Completed       bool                   `json:"completed"`
	Ended           bool                   `json:"ended"`
}
