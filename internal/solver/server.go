package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server answers optimizer requests over TCP using a backend Solver. It
// stops on a Kill request or when its context ends.
type Server struct {
	backend Solver
	logger  *slog.Logger
	timeout time.Duration

	requests atomic.Int64
}

func NewServer(backend Solver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{backend: backend, logger: logger, timeout: 10 * time.Second}
}

// Requests reports how many requests have been handled.
func (s *Server) Requests() int64 { return s.requests.Load() }

// ListenAndServe binds addr and serves until killed.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until a Kill request arrives or ctx is
// done. The backend is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("optimizer server listening", "addr", ln.Addr().String())
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var g errgroup.Group
	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		g.Go(func() error {
			if s.handle(ctx, conn) {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.backend.Close(); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("closing backend", "error", err)
	}
	s.logger.Info("optimizer server stopped", "requests", s.Requests())
	return acceptErr
}

// handle serves one request and reports whether it was a Kill.
func (s *Server) handle(ctx context.Context, conn net.Conn) bool {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.timeout))
	s.requests.Add(1)

	var req request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reply(conn, errorResponse{Type: "Error", Code: CodeInvalidRequest, Message: err.Error()})
		return false
	}

	switch {
	case req.Ping != nil:
		s.reply(conn, pong{Pong: 1})
	case req.Kill != nil:
		s.logger.Info("kill requested", "remote", conn.RemoteAddr().String())
		return true
	case req.Run != nil:
		res, err := s.backend.Solve(ctx, req.Run.Parameter, req.Run.InitialGuess)
		if err != nil {
			code := CodeSolverFailed
			var se *SolveError
			if errors.As(err, &se) {
				code = se.Code
			}
			s.logger.Debug("solve failed", "code", code, "error", err)
			s.reply(conn, errorResponse{Type: "Error", Code: code, Message: err.Error()})
			return false
		}
		s.reply(conn, res)
	default:
		s.reply(conn, errorResponse{Type: "Error", Code: CodeInvalidRequest, Message: "unknown request"})
	}
	return false
}

func (s *Server) reply(conn net.Conn, v any) {
	if err := json.NewEncoder(conn).Encode(v); err != nil {
		s.logger.Debug("write reply", "error", err)
	}
}
