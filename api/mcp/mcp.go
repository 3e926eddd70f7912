// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents post to and read from blackboard stores.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/utils"
)

type Config struct {
	// Stores resolves the store for a crew.
	Stores blackboard.Provider

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the blackboard tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "blackboard",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Stores == nil {
			return nil, errors.New("store provider is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        postToolName,
			Description: postDescription,
		}, s.handlePost)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        queryToolName,
			Description: queryDescription,
		}, s.handleQuery)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        contextToolName,
			Description: contextDescription,
		}, s.handleContext)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        snapshotToolName,
			Description: snapshotDescription,
		}, s.handleSnapshot)
	}

	s.mcpServer = mcpServer

	// Streamable HTTP handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
