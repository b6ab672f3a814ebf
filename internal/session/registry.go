package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/handoff"
	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Generator supplies the questions for a new interview.
type Generator interface {
	Generate(ctx context.Context, role string, level questions.Level, count int) ([]questions.Question, error)
}

// Registry creates interview setups and keeps the live controllers.
type Registry struct {
	gen          Generator
	store        handoff.Store
	deps         Deps
	cfg          Config
	defaultCount int
	logger       *log.Logger

	mu       sync.Mutex
	sessions map[string]*Controller
	idle     map[string]*idleTimer
	ended    map[string]struct{}
	closed   bool
}

func NewRegistry(gen Generator, store handoff.Store, deps Deps, cfg Config, defaultCount int) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if defaultCount <= 0 {
		defaultCount = 10
	}
	return &Registry{
		gen:          gen,
		store:        store,
		deps:         deps,
		cfg:          cfg,
		defaultCount: defaultCount,
		logger:       logger,
		sessions:     make(map[string]*Controller),
		idle:         make(map[string]*idleTimer),
		ended:        make(map[string]struct{}),
	}
}

// Create generates questions for role and level and saves the setup under a
// new session id. The generator's fallback questions are used when it fails.
func (r *Registry) Create(ctx context.Context, role string, level questions.Level, count int) (string, handoff.Setup, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return "", handoff.Setup{}, errors.New("role is required")
	}
	if count <= 0 {
		count = r.defaultCount
	}

	qs, err := r.gen.Generate(ctx, role, level, count)
	if err != nil {
		r.logger.Warn("using fallback questions", "role", role, "err", err)
	}
	if len(qs) == 0 {
		qs = questions.Fallback(role)
	}

	id := uuid.NewString()
	setup := handoff.Setup{Role: role, Level: level, Questions: qs}
	if err := r.store.Save(ctx, id, setup); err != nil {
		return "", handoff.Setup{}, fmt.Errorf("save setup: %w", err)
	}
	r.logger.Info("session created", "session", shortID(id), "role", role, "level", level, "questions", len(qs))
	return id, setup, nil
}

// Get returns the live controller for id, opening it from the saved setup
// on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Controller, error) {
	r.mu.Lock()
	if c, ok := r.sessions[id]; ok {
		if t := r.idle[id]; t != nil {
			t.Touch()
		}
		r.mu.Unlock()
		return c, nil
	}
	_, gone := r.ended[id]
	closed := r.closed
	r.mu.Unlock()
	if closed || gone {
		return nil, ErrNotFound
	}

	setup, err := r.store.Load(ctx, id)
	if errors.Is(err, handoff.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, gone := r.ended[id]; r.closed || gone {
		return nil, ErrNotFound
	}
	// Another caller may have opened it while the setup was loading.
	if existing, ok := r.sessions[id]; ok {
		return existing, nil
	}

	c, err := NewController(Session{
		ID:        id,
		Role:      setup.Role,
		Level:     setup.Level,
		Questions: setup.Questions,
		CreatedAt: time.Now(),
	}, r.deps, r.cfg)
	if err != nil {
		return nil, err
	}
	r.sessions[id] = c
	if r.cfg.IdleTimeout > 0 {
		t := newIdleTimer(r.cfg.IdleTimeout, func() bool { return r.expire(id) })
		r.idle[id] = t
		c.activity = t.Touch
	}
	return c, nil
}

// expire ends an idle session unless someone is still watching it or a
// recording is running.
func (r *Registry) expire(id string) bool {
	c, ok := r.Lookup(id)
	if !ok {
		return true
	}
	if c.hasSubscribers() || c.isRecording() {
		return false
	}
	r.logger.Info("ending idle session", "session", shortID(id))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.End(ctx, id, "idle")
	return true
}

// Lookup returns a live controller without opening one.
func (r *Registry) Lookup(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	return c, ok
}

// End tears the session down and forgets its setup. The id is never
// reopened afterwards.
func (r *Registry) End(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.ended[id] = struct{}{}
	t := r.idle[id]
	delete(r.idle, id)
	r.mu.Unlock()

	if t != nil {
		t.Stop()
	}

	if err := r.store.Delete(ctx, id); err != nil {
		r.logger.Warn("failed to delete setup", "session", shortID(id), "err", err)
	}
	if !ok {
		return ErrNotFound
	}
	return c.EndSession(reason)
}

// Shutdown ends every live session. The registry opens no sessions after.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	live := make([]*Controller, 0, len(r.sessions))
	for id, c := range r.sessions {
		live = append(live, c)
		delete(r.sessions, id)
	}
	for id, t := range r.idle {
		t.Stop()
		delete(r.idle, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range live {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			if err := c.EndSession("shutdown"); err != nil {
				r.logger.Error("session teardown failed", "session", shortID(c.ID()), "err", err)
			}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("shutdown timed out with sessions still ending")
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
