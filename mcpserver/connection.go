package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qsysmcp/broker/errors"
)

// registerConnectionTools registers manage_connection, whose behavior is
// dispatched on its required "action" argument (spec §4.F): status,
// connect, disconnect, reconnect, diagnose, test, configure, history,
// monitor, reset.
func (s *Server) registerConnectionTools() {
	manage := mcp.NewTool("manage_connection",
		mcp.WithDescription("Inspect or control the core connection"),
		mcp.WithString("action", mcp.Required(),
			mcp.Description("status|connect|disconnect|reconnect|diagnose|test|configure|history|monitor|reset")),
		mcp.WithNumber("limit", mcp.Description("Row limit for the history action")),
	)
	s.addTool(manage, "manage_connection", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := req.RequireString("action")
		if err != nil {
			return errResult(err)
		}

		switch action {
		case "status", "diagnose":
			return jsonResult(s.client.Diagnostics())

		case "connect":
			if err := s.client.Connect(ctx); err != nil {
				return errResult(err)
			}
			return jsonResult(s.client.Diagnostics())

		case "disconnect":
			if err := s.client.Disconnect(); err != nil {
				return errResult(err)
			}
			return jsonResult(s.client.Diagnostics())

		case "reconnect":
			_ = s.client.Disconnect()
			if err := s.client.Connect(ctx); err != nil {
				return errResult(err)
			}
			return jsonResult(s.client.Diagnostics())

		case "reset":
			_ = s.client.Disconnect()
			if err := s.client.Connect(ctx); err != nil {
				return errResult(err)
			}
			return jsonResult(map[string]string{"action": "reset", "state": string(s.client.State())})

		case "test":
			diag := s.client.Diagnostics()
			return jsonResult(map[string]interface{}{"reachable": s.client.IsConnected(), "state": diag.State})

		case "history":
			limit := req.GetInt("limit", 20)
			return jsonResult(s.audit.Recent(limit))

		case "monitor":
			return jsonResult(map[string]interface{}{
				"state":        s.client.State(),
				"breakerState": s.client.Diagnostics().BreakerState,
				"auditEntries": s.audit.Len(),
			})

		case "configure":
			return errResult(errors.NewKind(errors.KindValidation, "configure is read-only at runtime; edit the config file and restart"))

		default:
			return errResult(errors.Newfk(errors.KindValidation, "unknown manage_connection action %q", action))
		}
	})
}
