package analysis

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/frame"
	"github.com/amanullahtanweer/interview-rehearsal/internal/metrics"
	"github.com/charmbracelet/log"
)

const DefaultInterval = 3 * time.Second

// Capturer turns the current video frame into an encoded still.
type Capturer interface {
	Capture(src frame.VideoSource) (frame.EncodedImage, error)
}

// TickerFunc creates the tick source for one running period and a function
// releasing it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Options struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	// SkipIfPending drops a tick while an earlier request is still in flight.
	SkipIfPending bool
	Logger        *log.Logger
	Metrics       *metrics.SessionMetrics
	// OnUpdate receives a copy of the sample after every applied result.
	OnUpdate  func(Sample)
	NewTicker TickerFunc
}

// Poller periodically captures a frame, sends it to the analyzer and keeps
// the latest confidence score and feedback.
type Poller struct {
	capturer Capturer
	analyzer Analyzer
	opts     Options
	logger   *log.Logger

	mu          sync.Mutex
	running     bool
	generation  uint64
	seq         uint64
	lastApplied uint64
	inFlight    int
	cancel      context.CancelFunc
	loopDone    chan struct{}
	sample      Sample

	wg sync.WaitGroup
}

func NewPoller(capturer Capturer, analyzer Analyzer, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = realTicker
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Poller{
		capturer: capturer,
		analyzer: analyzer,
		opts:     opts,
		logger:   logger,
		sample:   defaultSample(),
	}
}

// Start begins ticking against src. It returns false if the poller was
// already running; no second ticker is created in that case.
func (p *Poller) Start(src frame.VideoSource) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticks, release := p.opts.NewTicker(p.opts.Interval)

	p.running = true
	p.generation++
	p.cancel = cancel
	p.loopDone = make(chan struct{})

	go p.loop(ctx, p.generation, src, ticks, release, p.loopDone)

	p.logger.Info("analysis started", "interval", p.opts.Interval)
	return true
}

// Stop cancels the ticker and any in-flight request. After it returns no
// new tick fires and no late result is applied. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.generation++
	cancel, done := p.cancel, p.loopDone
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("analysis stopped")
}

// Wait blocks until every issued tick has finished. Call it after Stop.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Sample returns a copy of the current analysis state.
func (p *Poller) Sample() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sample.clone()
}

func (p *Poller) loop(ctx context.Context, gen uint64, src frame.VideoSource, ticks <-chan time.Time, release func(), done chan struct{}) {
	defer close(done)
	defer release()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if ctx.Err() != nil {
				return
			}
			p.issue(ctx, gen, src)
		}
	}
}

func (p *Poller) issue(ctx context.Context, gen uint64, src frame.VideoSource) {
	p.mu.Lock()
	if p.opts.SkipIfPending && p.inFlight > 0 {
		p.mu.Unlock()
		if p.opts.Metrics != nil {
			p.opts.Metrics.AddSkippedTick()
		}
		return
	}
	p.seq++
	seq := p.seq
	p.inFlight++
	p.wg.Add(1)
	p.mu.Unlock()

	if p.opts.Metrics != nil {
		p.opts.Metrics.AddTick()
	}

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.inFlight--
			p.mu.Unlock()
		}()
		p.tick(ctx, gen, seq, src)
	}()
}

func (p *Poller) tick(ctx context.Context, gen, seq uint64, src frame.VideoSource) {
	img, err := p.capturer.Capture(src)
	if err != nil {
		p.logger.Debug("frame capture failed", "seq", seq, "err", err)
		if p.opts.Metrics != nil {
			p.opts.Metrics.AddCaptureFailure()
		}
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	result, err := p.analyzer.Analyze(reqCtx, img.DataURL())
	if err != nil {
		if ctx.Err() != nil {
			// Stopped while the request was in flight.
			return
		}
		p.logger.Warn("analysis error", "seq", seq, "err", err)
		if p.opts.Metrics != nil {
			p.opts.Metrics.AddAnalysisFailure()
		}
		return
	}

	p.apply(gen, seq, result)
}

func (p *Poller) apply(gen, seq uint64, result *Result) {
	p.mu.Lock()
	outcome := metrics.ResultApplied
	switch {
	case !p.running || gen != p.generation || seq <= p.lastApplied:
		outcome = metrics.ResultStale
	case result == nil || result.ConfidenceScore == nil:
		outcome = metrics.ResultEmpty
	}

	if outcome != metrics.ResultApplied {
		p.mu.Unlock()
		p.logger.Debug("analysis result not applied", "seq", seq, "stale", outcome == metrics.ResultStale)
		if p.opts.Metrics != nil {
			p.opts.Metrics.AddAnalysisResult(outcome)
		}
		return
	}

	p.lastApplied = seq
	p.sample = Sample{
		ConfidenceScore: clampScore(*result.ConfidenceScore),
		Feedback:        append([]string{}, result.Feedback...),
		UpdatedAt:       time.Now(),
	}
	snapshot := p.sample.clone()
	onUpdate := p.opts.OnUpdate
	p.mu.Unlock()

	if p.opts.Metrics != nil {
		p.opts.Metrics.AddAnalysisResult(outcome)
	}
	p.logger.Debug("analysis applied", "seq", seq, "score", snapshot.ConfidenceScore)
	if onUpdate != nil {
		onUpdate(snapshot)
	}
}
