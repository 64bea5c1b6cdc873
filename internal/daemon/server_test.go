package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/logging"
	"github.com/Aman-CERP/markrag/internal/scheduler"
	"github.com/Aman-CERP/markrag/internal/service"
)

// testSocketPath returns a short socket path; t.TempDir can exceed the
// Unix socket path limit.
func testSocketPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(os.TempDir(), fmt.Sprintf("markrag-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(path) })
	return path
}

type fakeHandler struct {
	mu         sync.Mutex
	lastSearch service.SearchRequest
	reindexErr error
	waited     atomic.Bool
}

func (f *fakeHandler) Search(_ context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	f.mu.Lock()
	f.lastSearch = req
	f.mu.Unlock()
	if req.Query == "explode" {
		return nil, merrors.ValidationError("bad query", nil)
	}
	return &service.SearchResponse{
		Results:    []service.SearchResult{{ID: "10", Title: "Rust Book", URL: "https://doc.rust-lang.org/book/", Score: 0.9}},
		TotalCount: 1,
		Offset:     req.Offset,
		Limit:      req.Limit,
	}, nil
}

func (f *fakeHandler) Ask(_ context.Context, req service.AskRequest) (*service.AskResponse, error) {
	return &service.AskResponse{Answer: "answer to " + req.Query, Mode: "local-fallback"}, nil
}

func (f *fakeHandler) Reindex(ctx context.Context, req service.ReindexRequest) (*service.ReindexResponse, error) {
	if req.Wait {
		f.waited.Store(true)
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.reindexErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &service.ReindexResponse{Started: true}, nil
}

func (f *fakeHandler) Status(_ context.Context) (*service.StatusResponse, error) {
	return &service.StatusResponse{TotalDocs: 3, EmbeddingModel: "static"}, nil
}

type serverFixture struct {
	handler  *fakeHandler
	sessions *scheduler.Sessions
	client   *Client
	socket   string
	shutdown chan struct{}
	cancel   context.CancelFunc
	errCh    chan error
}

func startServer(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		handler:  &fakeHandler{},
		sessions: scheduler.NewSessions(),
		socket:   testSocketPath(t),
		shutdown: make(chan struct{}),
		errCh:    make(chan error, 1),
	}
	var once sync.Once
	srv := NewServer(f.socket, f.handler,
		WithSessions(f.sessions),
		WithLogger(logging.Discard()),
		WithShutdownFunc(func() { once.Do(func() { close(f.shutdown) }) }),
		WithStatusHook(func(r *StatusResult) { r.BookmarksPath = "/tmp/Bookmarks" }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.errCh <- srv.ListenAndServe(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	f.client = NewClient(Config{SocketPath: f.socket, Timeout: 2 * time.Second})
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return f
}

func TestServer_PingAndIsRunning(t *testing.T) {
	f := startServer(t)

	assert.True(t, f.client.IsRunning())
	ping, err := f.client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), ping.PID)
}

func TestServer_Search(t *testing.T) {
	// Given: a running server
	f := startServer(t)

	// When: a client searches with paging
	resp, err := f.client.Search(context.Background(), SearchParams{Query: "rust", Offset: 2, Limit: 5})

	// Then: params reach the handler and the typed response comes back
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Rust Book", resp.Results[0].Title)
	assert.Equal(t, 2, resp.Offset)
	f.handler.mu.Lock()
	assert.Equal(t, service.SearchRequest{Query: "rust", Offset: 2, Limit: 5}, f.handler.lastSearch)
	f.handler.mu.Unlock()
}

func TestServer_HandlerErrorKeepsCode(t *testing.T) {
	f := startServer(t)

	_, err := f.client.Search(context.Background(), SearchParams{Query: "explode"})

	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeInvalidInput, merrors.GetCode(err))
}

func TestServer_Ask(t *testing.T) {
	f := startServer(t)

	resp, err := f.client.Ask(context.Background(), AskParams{Query: "borrow checker"})

	require.NoError(t, err)
	assert.Equal(t, "answer to borrow checker", resp.Answer)
}

func TestServer_Reindex(t *testing.T) {
	f := startServer(t)

	resp, err := f.client.Reindex(context.Background(), ReindexParams{Wait: true})
	require.NoError(t, err)
	assert.True(t, resp.Started)
	assert.True(t, f.handler.waited.Load())

	f.handler.mu.Lock()
	f.handler.reindexErr = merrors.New(merrors.ErrCodeBookmarksUnreadable, "missing file", nil)
	f.handler.mu.Unlock()
	_, err = f.client.Reindex(context.Background(), ReindexParams{})
	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeBookmarksUnreadable, merrors.GetCode(err))
}

func TestServer_Status(t *testing.T) {
	f := startServer(t)

	status, err := f.client.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalDocs)
	assert.Equal(t, "static", status.EmbeddingModel)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, "/tmp/Bookmarks", status.BookmarksPath)
	assert.NotEmpty(t, status.Uptime)
}

func TestServer_AttachHoldsSessionUntilClose(t *testing.T) {
	// Given: a running server with no sessions
	f := startServer(t)
	require.False(t, f.sessions.Interactive())

	// When: a client attaches
	a, err := f.client.Attach(context.Background())
	require.NoError(t, err)

	// Then: the session counts while attached and is released on close
	assert.Equal(t, 1, a.Sessions())
	assert.True(t, f.sessions.Interactive())

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return !f.sessions.Interactive() }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, a.Close())
}

func TestServer_AttachEndsWhenServerStops(t *testing.T) {
	f := startServer(t)
	a, err := f.client.Attach(context.Background())
	require.NoError(t, err)
	defer a.Close()

	f.cancel()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("attachment not closed when server stopped")
	}
}

func TestServer_Shutdown(t *testing.T) {
	f := startServer(t)

	require.NoError(t, f.client.Shutdown(context.Background()))

	select {
	case <-f.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hook not called")
	}
}

func rawCall(t *testing.T, socket, payload string) Response {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = conn.Write([]byte(payload + "\n"))
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestServer_ProtocolErrors(t *testing.T) {
	f := startServer(t)
	tests := []struct {
		name    string
		payload string
		code    int
	}{
		{"parse error", `{not json`, ErrCodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":"1"}`, ErrCodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"compact","id":"1"}`, ErrCodeMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","method":"search","params":{"query":7},"id":"1"}`, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawCall(t, f.socket, tt.payload)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestClient_NotRunning(t *testing.T) {
	c := NewClient(Config{SocketPath: testSocketPath(t), Timeout: 200 * time.Millisecond})

	assert.False(t, c.IsRunning())
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeDaemonNotRunning, merrors.GetCode(err))
}
