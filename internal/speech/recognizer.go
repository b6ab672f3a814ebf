package speech

import (
	"errors"
	"sync"
	"time"
)

// drainTimeout bounds how long a streaming backend's Stop waits for the
// server to flush its last result before the connection is dropped.
const drainTimeout = 2 * time.Second

// ErrUnsupportedCapability means no continuous speech recognizer is
// available on this platform.
var ErrUnsupportedCapability = errors.New("speech recognition is not supported")

type EventType int

const (
	EventStart EventType = iota
	EventResult
	EventError
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Segment is one recognized utterance. Final segments never change again.
type Segment struct {
	Transcript string
	Final      bool
}

// Event mirrors what a continuous recognizer reports. For results,
// Results is the cumulative list for the current run and ResultIndex is the
// first entry that changed since the previous event.
type Event struct {
	Type        EventType
	ResultIndex int
	Results     []Segment
	Err         error
}

// Config is applied to every recognizer created for a capture session.
type Config struct {
	Continuous     bool
	InterimResults bool
	Language       string
	SampleRate     int
}

// Capability creates recognizers.
type Capability interface {
	NewRecognizer(cfg Config) (Recognizer, error)
}

// Recognizer is a single continuous recognition run. After Start succeeds
// it emits exactly one EventEnd and then closes Events, whether it ended
// naturally, on error, or because Stop was called.
type Recognizer interface {
	Start() error
	Stop() error
	Events() <-chan Event
}

// AudioSink is implemented by recognizers that are fed raw PCM by the
// caller instead of capturing audio themselves.
type AudioSink interface {
	Feed(pcm []byte) error
}

// eventStream delivers events in order and guarantees the single
// end-then-close sequence.
type eventStream struct {
	ch      chan Event
	mu      sync.Mutex
	endOnce sync.Once
	closed  bool
}

func newEventStream() *eventStream {
	return &eventStream{ch: make(chan Event, 64)}
}

func (s *eventStream) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
}

func (s *eventStream) end() {
	s.endOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.ch <- Event{Type: EventEnd}
		s.closed = true
		close(s.ch)
	})
}

// resultList keeps the cumulative result list for backends that report one
// utterance at a time.
type resultList struct {
	segments []Segment
}

func (l *resultList) hasFinal() bool {
	for _, seg := range l.segments {
		if seg.Final {
			return true
		}
	}
	return false
}

func (l *resultList) set(text string, final bool) Event {
	if l.hasFinal() {
		text = " " + text
	}
	idx := len(l.segments)
	if idx > 0 && !l.segments[idx-1].Final {
		idx--
		l.segments[idx] = Segment{Transcript: text, Final: final}
	} else {
		l.segments = append(l.segments, Segment{Transcript: text, Final: final})
	}
	return Event{
		Type:        EventResult,
		ResultIndex: idx,
		Results:     append([]Segment(nil), l.segments...),
	}
}

func (l *resultList) partial(text string) Event { return l.set(text, false) }

func (l *resultList) final(text string) Event { return l.set(text, true) }
