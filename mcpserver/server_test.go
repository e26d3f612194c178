package mcpserver

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsysmcp/broker/audit"
	"github.com/qsysmcp/broker/config"
	"github.com/qsysmcp/broker/qsys"
)

func testServer(t *testing.T, cfg config.DispatcherConfig) *Server {
	t.Helper()
	client := qsys.New(qsys.Target{Host: "127.0.0.1"})
	return New(client, nil, nil, cfg)
}

func TestWrap_RateLimitsPerCaller(t *testing.T) {
	s := testServer(t, config.DispatcherConfig{RateLimit: config.RateLimitConfig{RPM: 60, Burst: 1}, AnonymousAllow: []string{"noop"}})

	calls := 0
	handler := s.wrap("noop", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calls++
		return jsonResult(map[string]bool{"ok": true})
	})

	ctx := WithCallerID(context.Background(), "caller-a")
	req := mcp.CallToolRequest{}

	first, err := handler(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.IsError)

	second, err := handler(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.IsError)
	assert.Equal(t, 1, calls)
}

func TestWrap_AnonymousAllowBypassesAuth(t *testing.T) {
	s := testServer(t, config.DispatcherConfig{
		RateLimit:        config.RateLimitConfig{RPM: 600, Burst: 20},
		AuthTokensHashed: []string{hashToken("secret-token")},
		AnonymousAllow:   []string{"echo"},
	})

	handler := s.wrap("echo", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]bool{"ok": true})
	})

	result, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestWrap_ProtectedToolRequiresAuth(t *testing.T) {
	s := testServer(t, config.DispatcherConfig{
		RateLimit:        config.RateLimitConfig{RPM: 600, Burst: 20},
		AuthTokensHashed: []string{hashToken("secret-token")},
	})

	handler := s.wrap("set_control_values", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]bool{"ok": true})
	})

	unauthed, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, unauthed.IsError)

	authed, err := handler(WithCredential(context.Background(), "secret-token"), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, authed.IsError)
}

func TestWrap_RecordsAudit(t *testing.T) {
	s := testServer(t, config.DispatcherConfig{RateLimit: config.RateLimitConfig{RPM: 600, Burst: 20}, AnonymousAllow: []string{"echo"}})

	handler := s.wrap("echo", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]bool{"ok": true})
	})
	_, _ = handler(context.Background(), mcp.CallToolRequest{})

	recent := s.Audit().Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "echo", recent[0].ToolID)
	assert.True(t, recent[0].Success)
}

func TestAuthenticate_NoTokensConfiguredIsNoOp(t *testing.T) {
	s := testServer(t, config.DispatcherConfig{})
	assert.True(t, s.authenticate(context.Background()))
}

func TestAuthenticate_RejectsWrongCredential(t *testing.T) {
	s := testServer(t, config.DispatcherConfig{AuthTokensHashed: []string{hashToken("right")}})
	assert.False(t, s.authenticate(WithCredential(context.Background(), "wrong")))
	assert.True(t, s.authenticate(WithCredential(context.Background(), "right")))
}

func TestAuditLogRingBuffer(t *testing.T) {
	log := audit.New(2)
	log.Append(audit.Record{ToolID: "a"})
	log.Append(audit.Record{ToolID: "b"})
	log.Append(audit.Record{ToolID: "c"})
	recent := log.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ToolID)
}

func TestAPIDocumentation_Catalogue(t *testing.T) {
	docs := apiDocumentation("catalogue", "")
	list, ok := docs.([]toolDoc)
	require.True(t, ok)
	assert.NotEmpty(t, list)
}

func TestAPIDocumentation_Tool(t *testing.T) {
	docs := apiDocumentation("tool", "echo")
	doc, ok := docs.(toolDoc)
	require.True(t, ok)
	assert.Equal(t, "echo", doc.Name)
}

func TestAPIDocumentation_Category(t *testing.T) {
	docs := apiDocumentation("category", "change-group")
	list, ok := docs.([]toolDoc)
	require.True(t, ok)
	for _, d := range list {
		assert.Equal(t, "change-group", d.Category)
	}
	assert.NotEmpty(t, list)
}
