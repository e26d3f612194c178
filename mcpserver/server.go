// Package mcpserver is the MCP-facing dispatcher: it registers the fixed
// tool catalogue of spec §4.F, and wraps every call in the
// decode -> identity -> rate-limit -> auth -> validate -> execute -> audit
// pipeline of spec §4.E.
package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qsysmcp/broker/adapter"
	"github.com/qsysmcp/broker/audit"
	"github.com/qsysmcp/broker/config"
	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
	"github.com/qsysmcp/broker/qsys"
	"github.com/qsysmcp/broker/ratelimit"
	"github.com/qsysmcp/broker/recorder"
)

// anonymousAllowDefault is the method allowed without credentials even
// when no explicit allowlist is configured (spec §4.E step 4).
const anonymousAllowDefault = "echo"

// Server owns the stdio MCP transport and the fixed tool catalogue.
type Server struct {
	mcp      *server.MCPServer
	adapter  *adapter.Adapter
	client   *qsys.Client
	recorder *recorder.Recorder
	limiter  *ratelimit.Limiter
	audit    *audit.Log

	tokens    map[string]bool // sha256-hex -> allowed
	anonAllow map[string]bool
}

// New wires a Server from its components and the dispatcher config.
func New(client *qsys.Client, ad *adapter.Adapter, rec *recorder.Recorder, cfg config.DispatcherConfig) *Server {
	s := &Server{
		adapter:   ad,
		client:    client,
		recorder:  rec,
		limiter:   ratelimit.New(cfg.RateLimit.RPM, cfg.RateLimit.Burst),
		audit:     audit.New(cfg.AuditCapacity),
		tokens:    make(map[string]bool),
		anonAllow: make(map[string]bool),
	}

	for _, h := range cfg.AuthTokensHashed {
		s.tokens[h] = true
	}
	anon := cfg.AnonymousAllow
	if len(anon) == 0 {
		anon = []string{anonymousAllowDefault}
	}
	for _, id := range anon {
		s.anonAllow[id] = true
	}

	s.mcp = server.NewMCPServer(
		"qsys-mcp-broker",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Serve blocks, serving the MCP protocol over stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

// wrap builds the dispatch pipeline around a tool's domain handler:
// identity extraction, rate limiting, auth, execution, and audit logging.
// Schema validation happens via mcp-go's declared parameter types plus
// each handler's own request.RequireX calls.
func (s *Server) wrap(toolID string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		callerID := callerIDFromContext(ctx)

		record := audit.Record{Timestamp: start, CallerID: callerID, ToolID: toolID}
		defer func() {
			record.DurationMS = time.Since(start).Milliseconds()
			s.audit.Append(record)
		}()

		if !s.limiter.Allow(callerID) {
			record.Success = false
			record.ErrorCode = string(errors.KindRateLimit)
			retryAfter := s.limiter.RetryAfter(callerID)
			return mcp.NewToolResultError(errors.Newfk(errors.KindRateLimit,
				"rate limit exceeded, retry after %s", retryAfter).Error()), nil
		}

		if !s.anonAllow[toolID] {
			if !s.authenticate(ctx) {
				record.Success = false
				record.ErrorCode = string(errors.KindAuth)
				return mcp.NewToolResultError(errors.NewKind(errors.KindAuth, "missing or invalid credentials").Error()), nil
			}
		}

		result, err := handler(ctx, req)
		if err != nil {
			record.Success = false
			record.ErrorCode = string(errors.KindOf(err))
			logger.Errorw("tool handler error", logger.FieldToolID, toolID, logger.FieldCallerID, callerID, "error", err.Error())
			return nil, err
		}

		record.Success = result == nil || !result.IsError
		return result, nil
	}
}

// Audit exposes the bounded audit log for the manage_connection/status
// tooling surface.
func (s *Server) Audit() *audit.Log { return s.audit }
