// Package server accepts AudioSocket connections and feeds each stream's
// audio into the interview session named by the connection's UUID.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/charmbracelet/log"
)

// AudioFeeder receives signed linear PCM for one session.
type AudioFeeder interface {
	FeedAudio(pcm []byte) error
}

// Resolver finds the session for a connection id.
type Resolver func(ctx context.Context, id string) (AudioFeeder, error)

type Config struct {
	Host string
	Port int
}

type Server struct {
	config  Config
	resolve Resolver
	logger  *log.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

func New(config Config, resolve Resolver, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		config:   config,
		resolve:  resolve,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("AudioSocket server listening", "addr", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept error", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		select {
		case <-s.shutdown:
			s.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop closes the listener and every open stream, then waits for the
// handlers. Sessions stay alive.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	id, err := audiosocket.GetID(conn)
	if err != nil {
		s.logger.Warn("failed to read AudioSocket id", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	sid := id.String()
	logger := s.logger.With("session", sid[:8])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	feeder, err := s.resolve(ctx, sid)
	cancel()
	if err != nil {
		logger.Warn("no session for audio stream", "err", err)
		return
	}

	started := time.Now()
	var bytesIn int
	logger.Info("audio stream connected", "remote", conn.RemoteAddr())

	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				logger.Warn("failed to read message", "err", err)
			}
			break
		}

		if done := s.handleMessage(logger, feeder, msg, &bytesIn); done {
			break
		}
	}

	logger.Info("audio stream closed", "duration", time.Since(started).Round(time.Millisecond), "bytes", bytesIn)
}

// handleMessage reports true when the stream should close.
func (s *Server) handleMessage(logger *log.Logger, feeder AudioFeeder, msg audiosocket.Message, bytesIn *int) bool {
	switch msg.Kind() {
	case audiosocket.KindSlin:
		pcm := msg.Payload()
		if len(pcm) == 0 {
			return false
		}
		*bytesIn += len(pcm)
		if err := feeder.FeedAudio(pcm); err != nil {
			logger.Warn("failed to feed audio", "err", err)
		}

	case audiosocket.KindDTMF:
		if p := msg.Payload(); len(p) > 0 {
			logger.Debug("DTMF digit", "digit", string(p[0]))
		}

	case audiosocket.KindSilence:
		logger.Debug("silence detected")

	case audiosocket.KindError:
		logger.Warn("AudioSocket error", "code", msg.ErrorCode())
		return true

	case audiosocket.KindHangup:
		logger.Info("received hangup")
		return true
	}
	return false
}
