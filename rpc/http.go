package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ecomchain/core"
	"ecomchain/observability"
	"ecomchain/services/indexer"
)

const (
	maxRequestBytes    = 1 << 20 // 1 MiB
	defaultReadTimeout = 15 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// EventQuery serves filtered event lookups from the SQL index.
type EventQuery interface {
	List(ctx context.Context, filter indexer.Filter) ([]indexer.EventRecord, error)
}

// ServerConfig carries the endpoint policy.
type ServerConfig struct {
	JWTSecret          string
	Issuer             string
	RateLimitPerSecond float64
	RateLimitBurst     int
	ReadTimeout        time.Duration
	Events             EventQuery
}

type methodFunc func(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error)

type method struct {
	fn       methodFunc
	mutating bool
}

// Server exposes the commerce engine over JSON-RPC 2.0.
type Server struct {
	node    *core.Node
	auth    *Authenticator
	limiter *sourceLimiter
	events  EventQuery
	logger  *slog.Logger
	timeout time.Duration
	methods map[string]method
}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	s := &Server{
		node:    node,
		auth:    NewAuthenticator(cfg.JWTSecret, cfg.Issuer),
		limiter: newSourceLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		events:  cfg.Events,
		logger:  logger.With(slog.String("component", "rpc")),
		timeout: timeout,
	}
	s.methods = s.commerceMethods()
	return s
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "rpc")
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.timeout,
		ReadTimeout:       s.timeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutdown: %w", err)
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle decodes a single JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	methodName := ""
	defer func() {
		observability.ModuleMetrics().Observe(moduleOf(methodName), methodName, rec.status, time.Since(start))
	}()

	reader := http.MaxBytesReader(rec, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	rec.Header().Set("Content-Type", "application/json")

	if !s.limiter.allow(clientSource(r)) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
		writeError(rec, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(rec, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(rec, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(rec, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	methodName = req.Method

	m, ok := s.methods[req.Method]
	if !ok {
		writeError(rec, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	var caller [20]byte
	if m.mutating {
		var authErr *RPCError
		caller, authErr = s.auth.Caller(r)
		if authErr != nil {
			writeError(rec, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	result, err := m.fn(r.Context(), caller, req)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			writeError(rec, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		writeEngineError(rec, req.ID, err)
		return
	}
	writeResult(rec, req.ID, result)
}

func moduleOf(methodName string) string {
	if idx := strings.IndexByte(methodName, '_'); idx > 0 {
		return methodName[:idx]
	}
	return "rpc"
}
