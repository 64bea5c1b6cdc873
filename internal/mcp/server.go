package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/markrag/internal/service"
	"github.com/Aman-CERP/markrag/pkg/version"
)

// Tool names.
const (
	ToolSearch  = "search_bookmarks"
	ToolAsk     = "ask_bookmarks"
	ToolReindex = "reindex_bookmarks"
	ToolStatus  = "index_status"
)

// Backend answers tool calls. *service.Service implements it.
type Backend interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
	Ask(ctx context.Context, req service.AskRequest) (*service.AskResponse, error)
	Reindex(ctx context.Context, req service.ReindexRequest) (*service.ReindexResponse, error)
	Status(ctx context.Context) (*service.StatusResponse, error)
}

var _ Backend = (*service.Service)(nil)

// SessionHolder marks the MCP client as an interactive session while the
// server runs. *scheduler.Sessions implements it.
type SessionHolder interface {
	Hold() func()
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearch,
		Description: "Search the user's browser bookmarks by title, folder, URL and fetched page text. Ranking blends keyword matches with semantic similarity. Supports paging with offset and limit.",
	},
	{
		Name:        ToolAsk,
		Description: "Answer a question using the user's bookmarks as context. Returns an answer with the bookmarks it cites. Falls back to a ranked list when no language model is configured.",
	},
	{
		Name:        ToolReindex,
		Description: "Re-read the bookmark file and refresh the index. Runs in the background unless wait is true.",
	},
	{
		Name:        ToolStatus,
		Description: "Report indexing progress, bookmark counts and the active embedding model.",
	},
}

// Option configures a Server.
type Option func(*Server)

// WithSessions registers the MCP client as an interactive session.
func WithSessions(h SessionHolder) Option {
	return func(s *Server) { s.sessions = h }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the MCP server for markrag.
type Server struct {
	mcp      *mcp.Server
	backend  Backend
	sessions SessionHolder
	logger   *slog.Logger
}

// NewServer creates an MCP server over backend.
func NewServer(backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}

	s := &Server{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "markrag",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	desc := make(map[string]string, len(tools))
	for _, t := range tools {
		desc[t.Name] = t.Description
	}

	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: desc[ToolSearch]}, s.searchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAsk, Description: desc[ToolAsk]}, s.askHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolReindex, Description: desc[ToolReindex]}, s.reindexHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolStatus, Description: desc[ToolStatus]}, s.statusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.Offset < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("offset must not be negative")
	}

	resp, err := s.backend.Search(ctx, service.SearchRequest{Query: query, Offset: input.Offset, Limit: input.Limit})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{
		Results:    toBookmarks(resp.Results, resp.Offset),
		TotalCount: resp.TotalCount,
		Offset:     resp.Offset,
		Limit:      resp.Limit,
		Indexing:   resp.Indexing || resp.ContentIndexing,
		UsedVector: resp.UsedVector,
	}
	return textResult(FormatSearchResults(query, resp)), out, nil
}

func (s *Server) askHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, AskOutput{}, NewInvalidParamsError("query parameter is required")
	}

	resp, err := s.backend.Ask(ctx, service.AskRequest{Query: query})
	if err != nil {
		return nil, AskOutput{}, MapError(err)
	}

	out := AskOutput{
		Answer:  resp.Answer,
		Mode:    string(resp.Mode),
		Sources: make([]BookmarkOutput, len(resp.Sources)),
	}
	for i, src := range resp.Sources {
		out.Sources[i] = BookmarkOutput{
			Rank:       src.Rank,
			Title:      src.Title,
			URL:        src.URL,
			FolderPath: src.FolderPath,
			Score:      src.Score,
		}
	}
	return textResult(FormatAnswer(resp)), out, nil
}

func (s *Server) reindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	resp, err := s.backend.Reindex(ctx, service.ReindexRequest{Wait: input.Wait, ContentOnly: input.ContentOnly})
	if err != nil {
		return nil, ReindexOutput{}, MapError(err)
	}

	msg := "Reindex started in the background."
	if input.Wait {
		msg = "Reindex finished."
	}
	return textResult(msg), ReindexOutput{Started: resp.Started}, nil
}

func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	out := toStatusOutput(st)
	return textResult(FormatStatus(out)), out, nil
}

// Serve runs the server on transport until ctx is done or the client
// disconnects. The client counts as one interactive session meanwhile.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		if s.sessions != nil {
			release := s.sessions.Hold()
			defer release()
		}
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
