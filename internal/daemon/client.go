package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/service"
)

// Client talks to a running daemon. Each call uses its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
	}
}

// Connect dials the daemon socket. A refused or missing socket is reported
// as ERR_306_DAEMON_NOT_RUNNING.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeDaemonNotRunning, "daemon is not running", err).
			WithSuggestion("Start it with 'markrag serve'")
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks that the daemon answers and returns its PID and version.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := c.call(ctx, MethodPing, nil, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search runs a search in the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) (*service.SearchResponse, error) {
	var result service.SearchResponse
	if err := c.call(ctx, MethodSearch, params, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ask answers a question in the daemon. The LLM call may be slow, so only
// ctx bounds it.
func (c *Client) Ask(ctx context.Context, params AskParams) (*service.AskResponse, error) {
	var result service.AskResponse
	if err := c.call(ctx, MethodAsk, params, &result, false); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reindex starts a manual reindex. With params.Wait the call blocks until
// indexing finishes or ctx is done.
func (c *Client) Reindex(ctx context.Context, params ReindexParams) (*service.ReindexResponse, error) {
	var result service.ReindexResponse
	if err := c.call(ctx, MethodReindex, params, &result, !params.Wait); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status retrieves the indexing status together with daemon details.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.call(ctx, MethodStatus, nil, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	var result ShutdownResult
	return c.call(ctx, MethodShutdown, nil, &result, true)
}

// Attachment is an open interactive session. Indexing runs at the
// interactive pace until it is closed.
type Attachment struct {
	conn     net.Conn
	sessions int
	done     chan struct{}
	once     sync.Once
}

// Sessions is the session count reported when the attachment was made.
func (a *Attachment) Sessions() int { return a.sessions }

// Done is closed when the daemon drops the connection.
func (a *Attachment) Done() <-chan struct{} { return a.done }

// Close ends the session.
func (a *Attachment) Close() error {
	var err error
	a.once.Do(func() { err = a.conn.Close() })
	return err
}

// Attach opens an interactive session that lasts until the Attachment is
// closed or the daemon goes away.
func (c *Client) Attach(ctx context.Context) (*Attachment, error) {
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(c.deadline(ctx, true)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{JSONRPC: "2.0", Method: MethodAttach, ID: c.nextID()}
	if err := c.send(conn, req); err != nil {
		_ = conn.Close()
		return nil, err
	}
	decoder := json.NewDecoder(conn)
	var result AttachResult
	if err := c.receive(decoder, &result); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	a := &Attachment{conn: conn, sessions: result.Sessions, done: make(chan struct{})}
	go func() {
		defer close(a.done)
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return a, nil
}

// call performs one request/response exchange. bounded applies the client
// timeout in addition to ctx.
func (c *Client) call(ctx context.Context, method string, params, result any, bounded bool) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(c.deadline(ctx, bounded)); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	if err := c.send(conn, req); err != nil {
		return c.ctxErr(ctx, err)
	}
	if err := c.receive(json.NewDecoder(conn), result); err != nil {
		return c.ctxErr(ctx, err)
	}
	return nil
}

func (c *Client) deadline(ctx context.Context, bounded bool) time.Time {
	var deadline time.Time
	if bounded {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return merrors.NetworkError("failed to send request to daemon", err)
	}
	return nil
}

// receive decodes a response and its result.
func (c *Client) receive(decoder *json.Decoder, result any) error {
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return merrors.NetworkError("failed to receive response from daemon", err)
	}
	if resp.Error != nil {
		return resp.Error.AsMarkError()
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return merrors.InternalError("failed to decode daemon response", err)
	}
	return nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
