package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/analysis"
	"github.com/rs/zerolog"
)

const fileTimeFormat = "20060102_150405"

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Journal writes one JSON line per session event. A nil *Journal discards
// everything.
type Journal struct {
	mu     sync.Mutex
	file   *os.File
	log    zerolog.Logger
	closed bool
}

// NewJournal creates <started>_session_<shortid>.jsonl under outputDir.
func NewJournal(outputDir, sessionID string, started time.Time) (*Journal, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	name := filepath.Join(outputDir, fmt.Sprintf("%s_session_%s.jsonl", started.Format(fileTimeFormat), shortID(sessionID)))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{
		file: f,
		log:  zerolog.New(f).With().Timestamp().Str("session_id", sessionID).Logger(),
	}, nil
}

func (j *Journal) Path() string {
	if j == nil || j.file == nil {
		return ""
	}
	return j.file.Name()
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// event runs fn against a new info event while the journal is open.
func (j *Journal) event(name string, fn func(e *zerolog.Event)) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	e := j.log.Info().Str("event", name)
	if fn != nil {
		fn(e)
	}
	e.Send()
}

func (j *Journal) SessionStart(role string, level string, questions int) {
	j.event("session_start", func(e *zerolog.Event) {
		e.Str("role", role).Str("level", level).Int("questions", questions)
	})
}

func (j *Journal) Analysis(s analysis.Sample) {
	j.event("analysis", func(e *zerolog.Event) {
		e.Int("confidence_score", s.ConfidenceScore).Strs("feedback", s.Feedback)
	})
}

func (j *Journal) RecordingStart(index int) {
	j.event("recording_start", func(e *zerolog.Event) { e.Int("index", index) })
}

func (j *Journal) RecordingEnd(index int) {
	j.event("recording_end", func(e *zerolog.Event) { e.Int("index", index) })
}

func (j *Journal) Answer(index int, text string) {
	j.event("answer", func(e *zerolog.Event) {
		e.Int("index", index).Str("text", strings.TrimSpace(text))
	})
}

func (j *Journal) Advance(from, to int, completed bool) {
	j.event("advance", func(e *zerolog.Event) {
		e.Int("from", from).Int("to", to).Bool("completed", completed)
	})
}

func (j *Journal) SessionEnd(reason string, summary string) {
	j.event("session_end", func(e *zerolog.Event) {
		e.Str("reason", reason).Str("metrics", summary)
	})
}
