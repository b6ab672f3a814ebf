package speech

import (
	"io"
	"sync"

	"github.com/amanullahtanweer/interview-rehearsal/internal/metrics"
	"github.com/charmbracelet/log"
)

const DefaultLanguage = "en-US"

// TranscriptState is the text recognized since the current recording
// started. InterimText is replaced on every update.
type TranscriptState struct {
	FinalText   string `json:"final_text"`
	InterimText string `json:"interim_text"`
}

// Display is what a viewer should show: committed text, or the provisional
// text while nothing is committed yet.
func (t TranscriptState) Display() string {
	if t.FinalText != "" {
		return t.FinalText
	}
	return t.InterimText
}

type Options struct {
	Language   string
	SampleRate int
	Logger     *log.Logger
	Metrics    *metrics.SessionMetrics
}

// CaptureSession runs at most one recognizer at a time and turns its
// events into a transcript.
type CaptureSession struct {
	capability Capability
	cfg        Config
	logger     *log.Logger
	metrics    *metrics.SessionMetrics

	mu        sync.Mutex
	rec       Recognizer
	starting  bool
	cancelled bool
	listening bool
	state     TranscriptState
	pumpDone  chan struct{}
}

// NewCaptureSession wraps capability. A nil capability makes every Start
// fail with ErrUnsupportedCapability.
func NewCaptureSession(capability Capability, opts Options) *CaptureSession {
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CaptureSession{
		capability: capability,
		cfg: Config{
			Continuous:     true,
			InterimResults: true,
			Language:       opts.Language,
			SampleRate:     opts.SampleRate,
		},
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Start creates and starts a recognizer. onResult receives the accumulated
// final text and the latest interim text after every result event; onEnd
// fires exactly once when the run ends. It returns false when a run is
// already active or starting, when the recognizer failed to start, or when
// Stop was called while it was starting. Only a missing capability is
// reported as an error. No lock is held while the recognizer starts.
func (s *CaptureSession) Start(onResult func(finalText, interimText string), onEnd func()) (bool, error) {
	if s.capability == nil {
		s.logger.Warn("speech recognition not supported")
		return false, ErrUnsupportedCapability
	}

	s.mu.Lock()
	if s.rec != nil || s.starting {
		s.mu.Unlock()
		return false, nil
	}
	rec, err := s.capability.NewRecognizer(s.cfg)
	if err != nil {
		s.mu.Unlock()
		if err == ErrUnsupportedCapability {
			s.logger.Warn("speech recognition not supported")
			return false, err
		}
		s.logger.Error("error creating speech recognizer", "err", err)
		return false, nil
	}
	s.starting = true
	s.cancelled = false
	s.mu.Unlock()

	err = rec.Start()

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("error starting speech recognition", "err", err)
		return false, nil
	}
	if s.cancelled {
		s.cancelled = false
		s.mu.Unlock()
		s.logger.Info("speech recognition stopped while starting")
		go discard(rec)
		return false, nil
	}
	s.rec = rec
	s.listening = false
	s.state = TranscriptState{}
	s.pumpDone = make(chan struct{})
	go s.pump(rec, onResult, onEnd, s.pumpDone)
	s.mu.Unlock()

	return true, nil
}

// discard stops a recognizer nobody listens to and drains its events.
func discard(rec Recognizer) {
	rec.Stop()
	for range rec.Events() {
	}
}

// Stop asks the active recognizer to stop. The end notification arrives
// asynchronously through onEnd. A recognizer still starting is stopped as
// soon as its Start returns. Safe to call when nothing is running.
func (s *CaptureSession) Stop() {
	s.mu.Lock()
	rec := s.rec
	if s.starting {
		s.cancelled = true
	}
	s.listening = false
	s.mu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Stop(); err != nil {
		s.logger.Warn("error stopping speech recognition", "err", err)
	}
}

// IsStarting reports whether a recognizer is still starting.
func (s *CaptureSession) IsStarting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting
}

// Wait blocks until the latest run has delivered its end notification.
func (s *CaptureSession) Wait() {
	s.mu.Lock()
	done := s.pumpDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Feed forwards microphone audio to the active recognizer, if it takes
// audio from the caller. Audio arriving while nothing runs is dropped.
func (s *CaptureSession) Feed(pcm []byte) error {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()

	sink, ok := rec.(AudioSink)
	if !ok {
		return nil
	}
	return sink.Feed(pcm)
}

func (s *CaptureSession) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// IsActive reports whether a recognizer instance exists, listening or not.
func (s *CaptureSession) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

func (s *CaptureSession) Transcript() TranscriptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CaptureSession) pump(rec Recognizer, onResult func(string, string), onEnd func(), done chan struct{}) {
	defer close(done)

	ended := false
	finish := func() {
		if ended {
			return
		}
		ended = true
		s.mu.Lock()
		if s.rec == rec {
			s.rec = nil
			s.listening = false
		}
		s.mu.Unlock()
		s.logger.Info("speech recognition ended")
		if onEnd != nil {
			onEnd()
		}
	}

	for ev := range rec.Events() {
		if ended {
			continue
		}
		switch ev.Type {
		case EventStart:
			s.mu.Lock()
			s.listening = true
			s.mu.Unlock()
			s.logger.Info("speech recognition started")

		case EventResult:
			state := s.applyResult(ev)
			if onResult != nil {
				onResult(state.FinalText, state.InterimText)
			}

		case EventError:
			s.mu.Lock()
			s.listening = false
			s.mu.Unlock()
			s.logger.Error("speech recognition error", "err", ev.Err)

		case EventEnd:
			finish()
		}
	}

	// A recognizer that closed without an end event still ends the run.
	finish()
}

func (s *CaptureSession) applyResult(ev Event) TranscriptState {
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}

	var interim string
	finals := 0
	s.mu.Lock()
	for i := start; i < len(ev.Results); i++ {
		seg := ev.Results[i]
		if seg.Final {
			s.state.FinalText += seg.Transcript
			finals++
		} else {
			interim += seg.Transcript
		}
	}
	s.state.InterimText = interim
	state := s.state
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AddTranscriptResult(finals > 0)
	}
	return state
}
