// Package mcpserver exposes retrieval and grounded answering as Model
// Context Protocol tools so agents can query the indexed medical records.
package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/pagination"
	"github.com/cloo-solutions/meddocs/internal/service"
)

const (
	serverName = "meddocs"
	uriScheme  = "meddocs://"
)

type Retriever interface {
	Retrieve(ctx context.Context, req service.RetrieveRequest) []domain.ScoredPassage
}

type Chat interface {
	Ask(ctx context.Context, input service.AskInput) (*service.AskOutput, error)
}

type Documents interface {
	List(ctx context.Context, filter domain.DocumentFilter) (*pagination.PageResult[*domain.Document], error)
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// Defaults apply when a tool call leaves k or min_similarity unset.
type Defaults struct {
	K             int
	MinSimilarity float64
}

type Server struct {
	retriever Retriever
	chat      Chat
	documents Documents
	defaults  Defaults
	server    *mcp.Server
	log       *logger.Logger
}

func NewServer(version string, retriever Retriever, chat Chat, documents Documents, defaults Defaults) *Server {
	s := &Server{
		retriever: retriever,
		chat:      chat,
		documents: documents,
		defaults:  defaults,
		server:    mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
		log:       logger.New("mcp"),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr, wrapped in handler
// middleware such as token auth.
func (s *Server) RunHTTP(ctx context.Context, addr string, wrap func(http.Handler) http.Handler) error {
	var handler http.Handler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	if wrap != nil {
		handler = wrap(handler)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("mcp server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
