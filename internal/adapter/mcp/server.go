package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/portcullis/portcullis/internal/core/port"
	"github.com/portcullis/portcullis/internal/core/service"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with the gate's tools and logging hooks.
func NewServer(version string, catalog *service.CatalogService, gate *service.QueryService, logger zerolog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, catalog, gate, logger)

	return s
}
