// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes database operations as tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/blaze/pkg/blaze"
)

// Server wraps the MCP server with database tools rooted at one
// reference.
type Server struct {
	mcp  *server.MCPServer
	root *blaze.Reference
}

// New creates a new MCP server with all database tools registered.
func New(root *blaze.Reference) *Server {
	s := &Server{root: root}

	s.mcp = server.NewMCPServer(
		"Blaze",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("db_get",
		mcp.WithDescription("Read the JSON value stored at a database path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated path into the document tree (e.g. users/u1)")),
	), s.get)

	s.mcp.AddTool(mcp.NewTool("db_set",
		mcp.WithDescription("Replace the value at a database path with the given JSON document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated path into the document tree")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON document to store")),
	), s.set)

	s.mcp.AddTool(mcp.NewTool("db_update",
		mcp.WithDescription("Merge the given JSON object into the value at a database path. Fields not named are left untouched."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated path into the document tree")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON object of fields to merge")),
	), s.update)

	s.mcp.AddTool(mcp.NewTool("db_push",
		mcp.WithDescription("Append the given JSON document under a generated child key and return the key."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated path of the list to append to")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON document to append")),
	), s.push)

	s.mcp.AddTool(mcp.NewTool("db_delete",
		mcp.WithDescription("Delete the value stored at a database path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated path into the document tree")),
	), s.delete)

	s.mcp.AddTool(mcp.NewTool("db_increment",
		mcp.WithDescription("Atomically add a delta to the integer counter at a database path. Safe under concurrent writers."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Slash-separated path of the counter")),
		mcp.WithNumber("delta", mcp.Required(), mcp.Description("Signed amount to add")),
	), s.increment)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) at(path string) *blaze.Reference {
	return s.root.At(path)
}

func (s *Server) get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.at(path).Get(ctx)
	if err != nil {
		if errors.Is(err, blaze.ErrNotFoundOrNull) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Body), nil
}

// decodeValue parses the tool's JSON value argument.
func decodeValue(req mcp.CallToolRequest) (any, error) {
	raw, err := req.RequireString("value")
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return v, nil
}

func (s *Server) set(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := decodeValue(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.at(path).Set(ctx, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Body), nil
}

func (s *Server) update(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := decodeValue(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.at(path).Update(ctx, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Body), nil
}

func (s *Server) push(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := decodeValue(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.at(path).Push(ctx, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Body), nil
}

func (s *Server) delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.at(path).Delete(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) increment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	delta, err := req.RequireFloat("delta")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.at(path).ApplyDelta(ctx, int64(delta))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Body), nil
}
