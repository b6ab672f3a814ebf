package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/frame"
	"github.com/amanullahtanweer/interview-rehearsal/internal/metrics"
)

type fakeCapturer struct {
	err error
}

func (f fakeCapturer) Capture(frame.VideoSource) (frame.EncodedImage, error) {
	if f.err != nil {
		return frame.EncodedImage{}, f.err
	}
	return frame.EncodedImage{Data: []byte("jpeg"), Width: 1, Height: 1}, nil
}

type analyzerFunc func(ctx context.Context, image string) (*Result, error)

func (f analyzerFunc) Analyze(ctx context.Context, image string) (*Result, error) {
	return f(ctx, image)
}

// manualTicker hands out one shared channel and counts how many tickers
// were requested.
type manualTicker struct {
	ch      chan time.Time
	created int32
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) factory(time.Duration) (<-chan time.Time, func()) {
	atomic.AddInt32(&m.created, 1)
	return m.ch, func() {}
}

func (m *manualTicker) tick() {
	m.ch <- time.Now()
}

func score(v float64) *float64 { return &v }

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

func TestPollerAppliesResultAndKeepsStaleState(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Write([]byte(`{"confidence_score": 8, "feedback": ["Good eye contact"]}`))
			return
		}
		w.Write([]byte(`{"feedback": ["ignored"]}`))
	}))
	defer srv.Close()

	ticker := newManualTicker()
	m := metrics.NewSessionMetrics("test")
	p := NewPoller(fakeCapturer{}, NewHTTPAnalyzer(srv.URL, time.Second), Options{
		NewTicker: ticker.factory,
		Metrics:   m,
	})

	if got := p.Sample(); got.ConfidenceScore != DefaultScore || len(got.Feedback) != 0 {
		t.Fatalf("initial sample = %+v", got)
	}

	p.Start(nil)
	defer p.Stop()

	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().ResultsApplied == 1 })

	want := []string{"Good eye contact"}
	got := p.Sample()
	if got.ConfidenceScore != 8 || !reflect.DeepEqual(got.Feedback, want) {
		t.Fatalf("after first tick = %+v", got)
	}

	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().ResultsEmpty == 1 })

	got = p.Sample()
	if got.ConfidenceScore != 8 || !reflect.DeepEqual(got.Feedback, want) {
		t.Errorf("response without score changed state: %+v", got)
	}
}

func TestPollerStopDiscardsInFlightResult(t *testing.T) {
	called := make(chan struct{}, 1)
	release := make(chan struct{})
	analyzer := analyzerFunc(func(ctx context.Context, image string) (*Result, error) {
		called <- struct{}{}
		<-release
		return &Result{ConfidenceScore: score(9), Feedback: []string{"late"}}, nil
	})

	ticker := newManualTicker()
	m := metrics.NewSessionMetrics("test")
	p := NewPoller(fakeCapturer{}, analyzer, Options{NewTicker: ticker.factory, Metrics: m})

	p.Start(nil)
	ticker.tick()
	<-called

	before := p.Sample()
	p.Stop()
	close(release)
	p.Wait()

	after := p.Sample()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("late result applied after Stop: before %+v after %+v", before, after)
	}
	if got := m.Snapshot().StaleDiscarded; got != 1 {
		t.Errorf("StaleDiscarded = %d, want 1", got)
	}
}

func TestPollerStartIsIdempotent(t *testing.T) {
	var calls int32
	analyzer := analyzerFunc(func(ctx context.Context, image string) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return &Result{ConfidenceScore: score(6)}, nil
	})

	ticker := newManualTicker()
	p := NewPoller(fakeCapturer{}, analyzer, Options{NewTicker: ticker.factory})

	if !p.Start(nil) {
		t.Fatal("first Start should succeed")
	}
	if p.Start(nil) {
		t.Error("second Start should be a no-op")
	}
	if got := atomic.LoadInt32(&ticker.created); got != 1 {
		t.Fatalf("tickers created = %d, want 1", got)
	}

	for i := 0; i < 3; i++ {
		ticker.tick()
	}
	eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 })

	p.Stop()
	p.Stop()
	p.Wait()
	if p.IsRunning() {
		t.Error("poller should be idle after Stop")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("analyzer calls = %d, want exactly 3", got)
	}

	if !p.Start(nil) {
		t.Error("Start after Stop should succeed")
	}
	p.Stop()
	if got := atomic.LoadInt32(&ticker.created); got != 2 {
		t.Errorf("tickers created = %d, want 2", got)
	}
}

func TestPollerIgnoresOutOfOrderResult(t *testing.T) {
	var calls int32
	firstCalled := make(chan struct{})
	release := make(chan struct{})
	analyzer := analyzerFunc(func(ctx context.Context, image string) (*Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(firstCalled)
			<-release
			return &Result{ConfidenceScore: score(2), Feedback: []string{"old"}}, nil
		}
		return &Result{ConfidenceScore: score(7), Feedback: []string{"new"}}, nil
	})

	ticker := newManualTicker()
	m := metrics.NewSessionMetrics("test")
	p := NewPoller(fakeCapturer{}, analyzer, Options{NewTicker: ticker.factory, Metrics: m})
	p.Start(nil)
	defer p.Stop()

	ticker.tick()
	<-firstCalled
	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().ResultsApplied == 1 })

	close(release)
	eventually(t, func() bool { return m.Snapshot().StaleDiscarded == 1 })

	if got := p.Sample(); got.ConfidenceScore != 7 || got.Feedback[0] != "new" {
		t.Errorf("older response overwrote newer one: %+v", got)
	}
}

func TestPollerSurvivesTickFailures(t *testing.T) {
	var fail int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "Analysis failed"}`))
			return
		}
		w.Write([]byte(`{"confidence_score": 4, "feedback": []}`))
	}))
	defer srv.Close()

	ticker := newManualTicker()
	m := metrics.NewSessionMetrics("test")
	p := NewPoller(fakeCapturer{}, NewHTTPAnalyzer(srv.URL, time.Second), Options{NewTicker: ticker.factory, Metrics: m})
	p.Start(nil)
	defer p.Stop()

	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().AnalysisFailures == 1 })
	if !p.IsRunning() {
		t.Fatal("poller stopped after a failed tick")
	}

	atomic.StoreInt32(&fail, 0)
	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().ResultsApplied == 1 })
	if got := p.Sample().ConfidenceScore; got != 4 {
		t.Errorf("score = %d, want 4", got)
	}
}

func TestPollerCaptureFailureIsRecoverable(t *testing.T) {
	var calls int32
	analyzer := analyzerFunc(func(ctx context.Context, image string) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return &Result{ConfidenceScore: score(5)}, nil
	})

	ticker := newManualTicker()
	m := metrics.NewSessionMetrics("test")
	p := NewPoller(fakeCapturer{err: frame.ErrNoVideo}, analyzer, Options{NewTicker: ticker.factory, Metrics: m})
	p.Start(nil)
	defer p.Stop()

	ticker.tick()
	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().CaptureFailures == 2 })

	if !p.IsRunning() {
		t.Error("capture failure stopped the poller")
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("analyzer called %d times without a frame", got)
	}
}

func TestPollerSkipIfPending(t *testing.T) {
	release := make(chan struct{})
	analyzer := analyzerFunc(func(ctx context.Context, image string) (*Result, error) {
		<-release
		return &Result{ConfidenceScore: score(3)}, nil
	})

	ticker := newManualTicker()
	m := metrics.NewSessionMetrics("test")
	p := NewPoller(fakeCapturer{}, analyzer, Options{NewTicker: ticker.factory, Metrics: m, SkipIfPending: true})
	p.Start(nil)

	ticker.tick()
	ticker.tick()
	eventually(t, func() bool { return m.Snapshot().TicksSkipped == 1 })

	close(release)
	eventually(t, func() bool { return m.Snapshot().ResultsApplied == 1 })
	p.Stop()
	p.Wait()

	if got := m.Snapshot().TicksIssued; got != 1 {
		t.Errorf("TicksIssued = %d, want 1", got)
	}
}

func TestPollerRealTickerStopsTicking(t *testing.T) {
	var calls int32
	analyzer := analyzerFunc(func(ctx context.Context, image string) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return &Result{ConfidenceScore: score(5)}, nil
	})

	var updates int32
	p := NewPoller(fakeCapturer{}, analyzer, Options{
		Interval: 10 * time.Millisecond,
		OnUpdate: func(Sample) { atomic.AddInt32(&updates, 1) },
	})
	p.Start(nil)
	eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 })

	p.Stop()
	p.Wait()
	stopped := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != stopped {
		t.Errorf("ticks fired after Stop: %d -> %d", stopped, got)
	}
	if atomic.LoadInt32(&updates) == 0 {
		t.Error("OnUpdate never called")
	}
}

func TestClampScore(t *testing.T) {
	testCases := []struct {
		in   float64
		want int
	}{
		{8, 8},
		{7.6, 8},
		{-3, 0},
		{42, 10},
		{0, 0},
	}
	for _, tc := range testCases {
		if got := clampScore(tc.in); got != tc.want {
			t.Errorf("clampScore(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
