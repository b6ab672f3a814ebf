package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/analysis"
	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/amanullahtanweer/interview-rehearsal/internal/speech"
)

type analyzerFunc func(ctx context.Context, image string) (*analysis.Result, error)

func (f analyzerFunc) Analyze(ctx context.Context, image string) (*analysis.Result, error) {
	return f(ctx, image)
}

func noResult(context.Context, string) (*analysis.Result, error) {
	return &analysis.Result{}, nil
}

// fakeRecognizer lets a test push results by hand. Stop ends the run.
type fakeRecognizer struct {
	events chan speech.Event
	gate   chan struct{}

	mu     sync.Mutex
	segs   []speech.Segment
	closed bool
	fed    int
}

func (r *fakeRecognizer) Start() error {
	if r.gate != nil {
		<-r.gate
	}
	r.events <- speech.Event{Type: speech.EventStart}
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.events <- speech.Event{Type: speech.EventEnd}
		close(r.events)
	}
	return nil
}

func (r *fakeRecognizer) Events() <-chan speech.Event { return r.events }

func (r *fakeRecognizer) Feed([]byte) error {
	r.mu.Lock()
	r.fed++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecognizer) final(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.segs = append(r.segs, speech.Segment{Transcript: text, Final: true})
	r.events <- speech.Event{
		Type:        speech.EventResult,
		ResultIndex: len(r.segs) - 1,
		Results:     append([]speech.Segment(nil), r.segs...),
	}
}

func (r *fakeRecognizer) interim(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	results := append(append([]speech.Segment(nil), r.segs...), speech.Segment{Transcript: text})
	r.events <- speech.Event{Type: speech.EventResult, ResultIndex: len(r.segs), Results: results}
}

// fakeSpeech creates fakeRecognizers. A non-nil gate holds every Start
// until it is closed.
type fakeSpeech struct {
	gate chan struct{}

	mu   sync.Mutex
	recs []*fakeRecognizer
}

func (f *fakeSpeech) NewRecognizer(speech.Config) (speech.Recognizer, error) {
	f.mu.Lock()
	r := &fakeRecognizer{events: make(chan speech.Event, 32), gate: f.gate}
	f.recs = append(f.recs, r)
	f.mu.Unlock()
	return r, nil
}

func (r *fakeRecognizer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (f *fakeSpeech) last(t *testing.T) *fakeRecognizer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recs) == 0 {
		t.Fatal("no recognizer created")
	}
	return f.recs[len(f.recs)-1]
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) factory(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

type fakeGenerator struct {
	qs  []questions.Question
	err error
}

func (g fakeGenerator) Generate(ctx context.Context, role string, level questions.Level, count int) ([]questions.Question, error) {
	return g.qs, g.err
}

type fakeEvaluator struct {
	eval questions.Evaluation
	err  error
}

func (e fakeEvaluator) Evaluate(ctx context.Context, question, answer string) (questions.Evaluation, error) {
	return e.eval, e.err
}

func testQuestions() []questions.Question {
	return []questions.Question{
		{Text: "Tell me about yourself.", Difficulty: questions.DifficultyEasy},
		{Text: "What is database indexing?", Difficulty: questions.DifficultyMedium},
	}
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
