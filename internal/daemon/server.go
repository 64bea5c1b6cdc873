package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/markrag/internal/service"
	"github.com/Aman-CERP/markrag/pkg/version"
)

// requestTimeout bounds a regular request. attach and waiting reindex
// requests run without a deadline.
const requestTimeout = 30 * time.Second

// Handler answers the query methods. *service.Service implements it.
type Handler interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
	Ask(ctx context.Context, req service.AskRequest) (*service.AskResponse, error)
	Reindex(ctx context.Context, req service.ReindexRequest) (*service.ReindexResponse, error)
	Status(ctx context.Context) (*service.StatusResponse, error)
}

var _ Handler = (*service.Service)(nil)

// SessionHolder tracks interactive sessions. *scheduler.Sessions implements it.
type SessionHolder interface {
	Hold() func()
	Count() int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSessions enables the attach method.
func WithSessions(h SessionHolder) ServerOption {
	return func(s *Server) { s.sessions = h }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithStatusHook lets the owner add process details to status results.
func WithStatusHook(fn func(*StatusResult)) ServerOption {
	return func(s *Server) { s.statusHook = fn }
}

// WithShutdownFunc is called after a shutdown request has been answered.
func WithShutdownFunc(fn func()) ServerOption {
	return func(s *Server) { s.onShutdown = fn }
}

// Server listens on a Unix socket and serves one JSON-RPC request per
// connection.
type Server struct {
	socketPath string
	handler    Handler
	sessions   SessionHolder
	logger     *slog.Logger
	statusHook func(*StatusResult)
	onShutdown func()

	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
	started  time.Time
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for handler on socketPath.
func NewServer(socketPath string, handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     slog.Default(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is closed once the socket is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAndServe serves until ctx is cancelled or Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A previous daemon may have died without removing its socket. The
	// instance lock guarantees nobody else is serving it.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		s.logger.Warn("socket_chmod_failed", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(requestTimeout)); err != nil {
		s.logger.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}
	if req.JSONRPC != "2.0" {
		_ = encoder.Encode(NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\""))
		return
	}

	switch req.Method {
	case MethodAttach:
		s.serveAttach(conn, decoder, encoder, req)
	case MethodShutdown:
		_ = encoder.Encode(NewSuccessResponse(req.ID, ShutdownResult{Stopping: true}))
		s.logger.Info("shutdown_requested")
		if s.onShutdown != nil {
			go s.onShutdown()
		}
	default:
		_ = encoder.Encode(s.handleRequest(ctx, conn, req))
	}
}

// serveAttach holds an interactive session until the client disconnects.
func (s *Server) serveAttach(conn net.Conn, decoder *json.Decoder, encoder *json.Encoder, req Request) {
	if s.sessions == nil {
		_ = encoder.Encode(NewErrorResponse(req.ID, ErrCodeMethodNotFound, "attach is not supported"))
		return
	}

	release := s.sessions.Hold()
	defer release()

	_ = conn.SetDeadline(time.Time{})
	if err := encoder.Encode(NewSuccessResponse(req.ID, AttachResult{Sessions: s.sessions.Count()})); err != nil {
		return
	}
	s.logger.Debug("session_attached", slog.Int("sessions", s.sessions.Count()))

	// Anything the client sends is ignored; EOF or a closed connection
	// ends the session.
	_, _ = io.Copy(io.Discard, decoder.Buffered())
	_, _ = io.Copy(io.Discard, conn)
	s.logger.Debug("session_detached")
}

// handleRequest dispatches a request to the handler.
func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{PID: os.Getpid(), Version: version.Version})

	case MethodStatus:
		status, err := s.handler.Status(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, s.statusResult(status))

	case MethodSearch:
		var params SearchParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		result, err := s.handler.Search(ctx, params)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodAsk:
		var params AskParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		result, err := s.handler.Ask(ctx, params)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodReindex:
		var params ReindexParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if params.Wait {
			_ = conn.SetDeadline(time.Time{})
		}
		result, err := s.handler.Reindex(ctx, params)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, result)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// decodeParams unmarshals req.Params into dst. Missing params leave dst zero.
func decodeParams(req Request, dst any) (Response, bool) {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return Response{}, true
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params: "+err.Error()), false
	}
	return Response{}, true
}

func (s *Server) statusResult(status *service.StatusResponse) StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	result := StatusResult{
		StatusResponse: *status,
		PID:            os.Getpid(),
		Uptime:         time.Since(started).Round(time.Second).String(),
	}
	if s.statusHook != nil {
		s.statusHook(&result)
	}
	return result
}

// Close stops accepting connections. In-flight requests are cut off by the
// ListenAndServe context.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
