// Package server runs the HTTP listener and the turn log subscriber and
// shuts both down together.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unroll-ai/unroll/internal/domain/chat"
	"github.com/unroll-ai/unroll/internal/infra/eventbus"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns default HTTP server configuration. There is no write
// timeout because chat responses are long-lived event streams.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Addr returns host:port.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// Server wraps the HTTP server and the turn log subscriber.
type Server struct {
	config Config
	http   *http.Server
	bus    eventbus.EventBus
	logger *slog.Logger
}

// New creates a server for handler. bus may be nil.
func New(handler http.Handler, bus eventbus.EventBus, config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config: config,
		bus:    bus,
		logger: logger,
		http: &http.Server{
			Addr:              config.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: config.ReadTimeout,
			IdleTimeout:       config.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.bus != nil {
		completed := s.bus.Subscribe(chat.TopicTurnCompleted)
		failed := s.bus.Subscribe(chat.TopicTurnFailed)
		g.Go(func() error {
			s.logTurns(completed, failed)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.bus.Unsubscribe(chat.TopicTurnCompleted, completed)
			s.bus.Unsubscribe(chat.TopicTurnFailed, failed)
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// logTurns drains both channels until they are closed.
func (s *Server) logTurns(completed, failed <-chan eventbus.Event) {
	for completed != nil || failed != nil {
		select {
		case ev, ok := <-completed:
			if !ok {
				completed = nil
				continue
			}
			s.logTurn(ev, slog.LevelInfo, "turn completed")
		case ev, ok := <-failed:
			if !ok {
				failed = nil
				continue
			}
			s.logTurn(ev, slog.LevelWarn, "turn failed")
		}
	}
}

func (s *Server) logTurn(ev eventbus.Event, level slog.Level, msg string) {
	rec, ok := ev.Payload.(chat.TurnRecord)
	if !ok {
		return
	}
	attrs := []any{
		"turn_id", rec.TurnID,
		"caller_id", rec.CallerID,
		"conversation_id", rec.ConversationID,
		"rounds", rec.Rounds,
		"tool_calls", rec.ToolCalls,
		"tokens", rec.Tokens,
		"duration", rec.Duration,
	}
	if rec.Err != "" {
		attrs = append(attrs, "error", rec.Err)
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}
