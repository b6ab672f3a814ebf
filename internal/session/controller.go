package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/analysis"
	"github.com/amanullahtanweer/interview-rehearsal/internal/answers"
	"github.com/amanullahtanweer/interview-rehearsal/internal/frame"
	"github.com/amanullahtanweer/interview-rehearsal/internal/metrics"
	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/amanullahtanweer/interview-rehearsal/internal/speech"
	"github.com/charmbracelet/log"
)

// Controller owns one session's poller, speech capture and answers.
// EndSession is the only teardown path and runs once.
type Controller struct {
	session Session
	cfg     Config
	deps    Deps
	logger  *log.Logger
	metrics *metrics.SessionMetrics
	journal *Journal
	video   *frame.LatestFrame
	poller  *analysis.Poller
	speech  *speech.CaptureSession
	ledger  *answers.Ledger
	started time.Time

	mu          sync.Mutex
	index       int
	active      bool
	completed   bool
	ended       bool
	recording   bool
	recIndex    int
	run         uint64
	stopRun     uint64
	advancing   int
	transcript  speech.TranscriptState
	subscribers map[int]chan Snapshot
	nextSub     int

	endOnce sync.Once
	endErr  error

	// activity is called on client traffic that bypasses the registry.
	activity func()
}

func NewController(s Session, deps Deps, cfg Config) (*Controller, error) {
	if deps.Analyzer == nil {
		return nil, errors.New("session: analyzer is required")
	}
	if deps.Capturer == nil {
		deps.Capturer = frame.NewSampler(frame.DefaultQuality)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.With("session", shortID(s.ID))

	started := s.CreatedAt
	if started.IsZero() {
		started = time.Now()
	}

	c := &Controller{
		session:     s,
		cfg:         cfg,
		deps:        deps,
		logger:      logger,
		metrics:     metrics.NewSessionMetrics(s.ID),
		video:       frame.NewLatestFrameWithLimit(cfg.MaxFrameDimension),
		ledger:      answers.NewLedger(),
		started:     started,
		subscribers: make(map[int]chan Snapshot),
	}

	if cfg.OutputDir != "" {
		j, err := NewJournal(cfg.OutputDir, s.ID, started)
		if err != nil {
			return nil, fmt.Errorf("create session journal: %w", err)
		}
		c.journal = j
	}

	c.poller = analysis.NewPoller(deps.Capturer, deps.Analyzer, analysis.Options{
		Interval:       cfg.Interval,
		RequestTimeout: cfg.RequestTimeout,
		SkipIfPending:  cfg.SkipIfPending,
		Logger:         logger,
		Metrics:        c.metrics,
		OnUpdate:       c.onAnalysis,
		NewTicker:      cfg.NewTicker,
	})
	c.speech = speech.NewCaptureSession(deps.Speech, speech.Options{
		Language:   cfg.Language,
		SampleRate: cfg.SampleRate,
		Logger:     logger,
		Metrics:    c.metrics,
	})

	return c, nil
}

func (c *Controller) ID() string { return c.session.ID }

func (c *Controller) Session() Session { return c.session }

func (c *Controller) Metrics() *metrics.SessionMetrics { return c.metrics }

// Video is the frame store the client pushes camera frames into.
func (c *Controller) Video() *frame.LatestFrame { return c.video }

func (c *Controller) Answers() []answers.Entry { return c.ledger.All() }

// BeginSession starts frame analysis against src, or against the
// controller's own frame store when src is nil.
func (c *Controller) BeginSession(src frame.VideoSource) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	if src == nil {
		src = c.video
	}
	first := !c.active
	c.active = true
	c.poller.Start(src)
	c.mu.Unlock()

	if first {
		c.journal.SessionStart(c.session.Role, string(c.session.Level), len(c.session.Questions))
		c.logger.Info("session started", "role", c.session.Role, "level", c.session.Level, "questions", len(c.session.Questions))
	}
	c.broadcast()
	return nil
}

// StartRecording starts speech capture for the current question. It returns
// false when a recording is already running, the question is changing or
// the recognizer could not start, and ErrUnsupportedCapability when no
// recognizer exists. The recognizer starts without the controller lock
// held, so a slow start never blocks snapshots or teardown.
func (c *Controller) StartRecording() (bool, error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return false, ErrEnded
	}
	if c.recording || c.advancing > 0 {
		c.mu.Unlock()
		return false, nil
	}
	idx := c.index
	c.run++
	run := c.run
	prev := c.transcript
	c.recording = true
	c.recIndex = idx
	c.transcript = speech.TranscriptState{}
	c.mu.Unlock()

	ok, err := c.speech.Start(
		func(final, interim string) { c.onTranscript(run, final, interim) },
		func() { c.onRecordingEnd(run, idx) },
	)

	c.mu.Lock()
	if err != nil || !ok {
		if c.run == run {
			c.recording = false
			c.transcript = prev
		}
		c.mu.Unlock()
		c.broadcast()
		return false, err
	}
	cancelled := c.ended || c.stopRun == run
	c.mu.Unlock()

	if cancelled {
		c.speech.Stop()
		return false, nil
	}
	c.journal.RecordingStart(idx)
	c.broadcast()
	return true, nil
}

// StopRecording stops speech capture, waits for the recognizer to flush and
// returns the answer now stored for the recorded question.
func (c *Controller) StopRecording() (string, bool) {
	c.mu.Lock()
	recording, idx := c.recording, c.recIndex
	if recording {
		c.stopRun = c.run
	}
	c.mu.Unlock()

	c.speech.Stop()
	c.speech.Wait()

	if !recording {
		return "", false
	}
	return c.ledger.Answer(idx)
}

// AdvanceQuestion moves to the next question, recording any answer in
// progress first. It reports true when the last question was already
// current, which marks the session completed.
func (c *Controller) AdvanceQuestion() (bool, error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return false, ErrEnded
	}
	c.advancing++
	c.mu.Unlock()

	c.StopRecording()

	c.mu.Lock()
	c.advancing--
	from := c.index
	completed := false
	if c.index < len(c.session.Questions)-1 {
		c.index++
		c.transcript = speech.TranscriptState{}
	} else {
		c.completed = true
		completed = true
	}
	to := c.index
	c.mu.Unlock()

	c.journal.Advance(from, to, completed)
	if completed {
		c.logger.Info("interview completed", "answers", c.ledger.Len())
	}
	c.broadcast()
	return completed, nil
}

// EndSession stops analysis and speech capture and finalizes the session.
// Later calls are no-ops.
func (c *Controller) EndSession(reason string) error {
	first := false
	c.endOnce.Do(func() {
		first = true
		c.endErr = c.teardown(reason)
	})
	if !first {
		return nil
	}
	return c.endErr
}

func (c *Controller) teardown(reason string) error {
	c.mu.Lock()
	c.ended = true
	c.active = false
	c.mu.Unlock()

	c.poller.Stop()
	c.poller.Wait()
	c.speech.Stop()
	c.speech.Wait()

	c.metrics.Finalize()
	summary := c.metrics.Summary()
	c.logger.Info("session ended", "reason", reason)
	c.logger.Info("session metrics\n" + summary)
	c.journal.SessionEnd(reason, summary)

	var err error
	if c.cfg.SaveTranscripts {
		err = c.saveAnswers()
	}
	if cerr := c.journal.Close(); err == nil {
		err = cerr
	}

	snap := c.Snapshot()
	c.mu.Lock()
	for id, ch := range c.subscribers {
		offer(ch, snap)
		close(ch)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()
	return err
}

// SubmitFrame stores a camera frame sent as a data URL.
func (c *Controller) SubmitFrame(dataURL string) error {
	c.mu.Lock()
	ended := c.ended
	c.mu.Unlock()
	if ended {
		return ErrEnded
	}
	return c.video.UpdateDataURL(dataURL)
}

// FeedAudio hands microphone PCM to the active recognizer.
func (c *Controller) FeedAudio(pcm []byte) error {
	if c.activity != nil {
		c.activity()
	}
	return c.speech.Feed(pcm)
}

// Evaluate scores the recorded answer for question index. Evaluation
// failures yield the fallback verdict.
func (c *Controller) Evaluate(ctx context.Context, index int) (questions.Evaluation, error) {
	if index < 0 || index >= len(c.session.Questions) {
		return questions.Evaluation{}, fmt.Errorf("question index %d out of range", index)
	}
	answer, ok := c.ledger.Answer(index)
	if !ok {
		return questions.Evaluation{}, ErrNoAnswer
	}
	if c.deps.Evaluator == nil {
		return questions.FallbackEvaluation(), nil
	}
	eval, err := c.deps.Evaluator.Evaluate(ctx, c.session.Questions[index].Text, answer)
	if err != nil {
		c.logger.Warn("answer evaluation fell back", "index", index, "err", err)
		eval = questions.FallbackEvaluation()
	}
	return eval, nil
}

func (c *Controller) Snapshot() Snapshot {
	sample := c.poller.Sample()

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:       c.session.ID,
		Role:            c.session.Role,
		Level:           c.session.Level,
		Index:           c.index,
		Total:           len(c.session.Questions),
		ConfidenceScore: sample.ConfidenceScore,
		Feedback:        sample.Feedback,
		Transcript:      c.transcript,
		Display:         c.transcript.Display(),
		Listening:       c.speech.IsListening(),
		Recording:       c.recording,
		Analyzing:       c.poller.IsRunning(),
		Answers:         c.ledger.All(),
		Active:          c.active,
		Completed:       c.completed,
		Ended:           c.ended,
	}
	if c.index < len(c.session.Questions) {
		q := c.session.Questions[c.index]
		snap.Question = &q
	}
	return snap
}

// Subscribe returns a channel carrying the latest snapshot after every
// change. Slow readers only see the most recent one. The channel is closed
// when the session ends or cancel is called.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	snap := c.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- snap
	if c.ended {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			close(sub)
			delete(c.subscribers, id)
		}
	}
}

func (c *Controller) isRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) hasSubscribers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers) > 0
}

func (c *Controller) broadcast() {
	snap := c.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		offer(ch, snap)
	}
}

// offer replaces whatever is buffered in ch with snap.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (c *Controller) onAnalysis(s analysis.Sample) {
	c.journal.Analysis(s)
	c.broadcast()
}

func (c *Controller) onTranscript(run uint64, final, interim string) {
	c.mu.Lock()
	if run != c.run {
		c.mu.Unlock()
		return
	}
	c.transcript = speech.TranscriptState{FinalText: final, InterimText: interim}
	c.mu.Unlock()
	c.broadcast()
}

func (c *Controller) onRecordingEnd(run uint64, idx int) {
	c.mu.Lock()
	if run != c.run {
		c.mu.Unlock()
		return
	}
	c.recording = false
	text := strings.TrimSpace(c.transcript.Display())
	c.mu.Unlock()

	c.journal.RecordingEnd(idx)
	if c.ledger.RecordAnswer(idx, text) {
		c.metrics.AddAnswer()
		c.journal.Answer(idx, text)
		c.logger.Info("answer recorded", "index", idx, "chars", len(text))
	}
	c.broadcast()
}

func (c *Controller) saveAnswers() error {
	var b strings.Builder
	fmt.Fprintf(&b, "Session ID: %s\nRole: %s\nLevel: %s\nStart Time: %s\nDuration: %v\n\n---ANSWERS---\n\n",
		c.session.ID,
		c.session.Role,
		c.session.Level,
		c.started.Format("2006-01-02 15:04:05"),
		time.Since(c.started).Round(time.Second),
	)
	for i, q := range c.session.Questions {
		answer, ok := c.ledger.Answer(i)
		if !ok {
			answer = "(no answer)"
		}
		fmt.Fprintf(&b, "Q%d [%s]: %s\nA: %s\n\n", i+1, q.Difficulty, q.Text, answer)
	}

	if err := os.MkdirAll(c.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := filepath.Join(c.cfg.OutputDir,
		fmt.Sprintf("%s_answers_%s.txt", c.started.Format(fileTimeFormat), shortID(c.session.ID)))
	if err := os.WriteFile(name, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	c.logger.Info("answers saved", "file", name)
	return nil
}
