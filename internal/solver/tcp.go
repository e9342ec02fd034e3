package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultPorts are probed in order when no ports are configured.
var DefaultPorts = []int{8333, 8334, 8335, 8336}

// Options configure Connect.
type Options struct {
	Identity    string
	Host        string
	Ports       []int
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// TCPClient is a connection to an optimizer server. Each request opens a
// fresh connection, writes one JSON document, half-closes and reads the reply
// until EOF.
type TCPClient struct {
	addr        string
	identity    string
	dialTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect probes opts.Ports in order and returns a client for the first port
// whose server answers the handshake. Every failed attempt is logged and, if
// none succeeds, returned joined with ErrNoSolver.
func Connect(ctx context.Context, opts Options) (*TCPClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ports := opts.Ports
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	errs := []error{ErrNoSolver}
	for _, port := range ports {
		c := &TCPClient{
			addr:        net.JoinHostPort(host, strconv.Itoa(port)),
			identity:    opts.Identity,
			dialTimeout: timeout,
			logger:      logger,
		}
		logger.Info("connecting to optimizer", "optimizer", opts.Identity, "port", port)
		if err := c.Ping(ctx); err != nil {
			logger.Warn("optimizer connect failed", "optimizer", opts.Identity, "port", port, "error", err)
			errs = append(errs, fmt.Errorf("port %d: %w", port, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		logger.Info("connected to optimizer", "optimizer", opts.Identity, "addr", c.addr)
		return c, nil
	}
	return nil, errors.Join(errs...)
}

func (c *TCPClient) Addr() string { return c.addr }

// Ping performs the handshake.
func (c *TCPClient) Ping(ctx context.Context) error {
	body, err := c.roundTrip(ctx, request{Ping: one()}, true)
	if err != nil {
		return err
	}
	var p pong
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("decode pong: %w", err)
	}
	if p.Pong != 1 {
		return fmt.Errorf("unexpected handshake reply %q", body)
	}
	return nil
}

func (c *TCPClient) Solve(ctx context.Context, params, warm []float64) (Result, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Result{}, ErrClosed
	}

	body, err := c.roundTrip(ctx, request{Run: &runRequest{Parameter: params, InitialGuess: warm}}, true)
	if err != nil {
		return Result{}, err
	}
	return decodeResult(body)
}

// Close asks the server to terminate. Only the first call sends anything.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()
	if _, err := c.roundTrip(ctx, request{Kill: one()}, false); err != nil {
		return fmt.Errorf("kill optimizer: %w", err)
	}
	c.logger.Info("optimizer closed", "optimizer", c.identity, "addr", c.addr)
	return nil
}

func (c *TCPClient) roundTrip(ctx context.Context, req request, wantReply bool) ([]byte, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, c.ctxErr(ctx, fmt.Errorf("write request: %w", err))
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	if !wantReply {
		return nil, nil
	}
	body, err := io.ReadAll(conn)
	if err != nil {
		return nil, c.ctxErr(ctx, fmt.Errorf("read reply: %w", err))
	}
	if len(body) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return body, nil
}

func (c *TCPClient) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
