package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of a session's counts.
type Counters struct {
	TicksIssued      int
	TicksSkipped     int
	CaptureFailures  int
	AnalysisFailures int
	ResultsApplied   int
	ResultsEmpty     int // no confidence score in the response
	StaleDiscarded   int
	PartialCount     int
	FinalCount       int
	AnswersRecorded  int
}

// SessionMetrics counts what happened during one rehearsal session.
type SessionMetrics struct {
	SessionID       string
	StartTime       time.Time
	EndTime         time.Time
	FirstResultTime *time.Time
	counters        Counters
	mu              sync.Mutex
}

func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

func (m *SessionMetrics) AddTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.TicksIssued++
}

func (m *SessionMetrics) AddSkippedTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.TicksSkipped++
}

func (m *SessionMetrics) AddCaptureFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.CaptureFailures++
}

func (m *SessionMetrics) AddAnalysisFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.AnalysisFailures++
}

// AddAnalysisResult records a remote result that reached the poller.
func (m *SessionMetrics) AddAnalysisResult(outcome ResultOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstResultTime == nil {
		now := time.Now()
		m.FirstResultTime = &now
	}
	switch outcome {
	case ResultApplied:
		m.counters.ResultsApplied++
	case ResultEmpty:
		m.counters.ResultsEmpty++
	case ResultStale:
		m.counters.StaleDiscarded++
	}
}

func (m *SessionMetrics) AddTranscriptResult(isFinal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isFinal {
		m.counters.FinalCount++
	} else {
		m.counters.PartialCount++
	}
}

func (m *SessionMetrics) AddAnswer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.AnswersRecorded++
}

func (m *SessionMetrics) Snapshot() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		m.EndTime = time.Now()
	}
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	var latency time.Duration
	if m.FirstResultTime != nil {
		latency = m.FirstResultTime.Sub(m.StartTime)
	}
	c := m.counters

	return fmt.Sprintf(
		"Session: %s\n"+
			"Duration: %v\n"+
			"Ticks: %d issued, %d skipped\n"+
			"Capture Failures: %d\n"+
			"Analysis Failures: %d\n"+
			"Results: %d applied, %d empty, %d discarded\n"+
			"First Result Latency: %v\n"+
			"Transcript Events: %d partial, %d final\n"+
			"Answers Recorded: %d\n",
		m.SessionID,
		end.Sub(m.StartTime),
		c.TicksIssued,
		c.TicksSkipped,
		c.CaptureFailures,
		c.AnalysisFailures,
		c.ResultsApplied,
		c.ResultsEmpty,
		c.StaleDiscarded,
		latency,
		c.PartialCount,
		c.FinalCount,
		c.AnswersRecorded,
	)
}

// ResultOutcome says what the poller did with a remote result.
type ResultOutcome int

const (
	ResultApplied ResultOutcome = iota
	ResultEmpty
	ResultStale
)
