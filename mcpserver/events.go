package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qsysmcp/broker/recorder"
)

func (s *Server) registerEventTools() {
	query := mcp.NewTool("query_change_events",
		mcp.WithDescription("Query recorded control-change events"),
		mcp.WithNumber("startTimeMs"),
		mcp.WithNumber("endTimeMs"),
		mcp.WithString("groupId"),
		mcp.WithArray("controlNames"),
		mcp.WithArray("componentNames"),
		mcp.WithNumber("limit", mcp.Description("Capped at 10000")),
		mcp.WithNumber("offset"),
	)
	s.addTool(query, "query_change_events", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.recorder == nil || s.recorder.Disabled() {
			return jsonResult(recorder.QueryResult{})
		}

		controlNames, _ := stringSlice(req, "controlNames")
		componentNames, _ := stringSlice(req, "componentNames")

		q := recorder.Query{
			StartTimeMS:    int64(req.GetInt("startTimeMs", 0)),
			EndTimeMS:      int64(req.GetInt("endTimeMs", 0)),
			GroupID:        req.GetString("groupId", ""),
			ControlNames:   controlNames,
			ComponentNames: componentNames,
			Limit:          req.GetInt("limit", 0),
			Offset:         req.GetInt("offset", 0),
		}

		result, err := s.recorder.Query(q)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(result)
	})

	stats := mcp.NewTool("get_event_statistics",
		mcp.WithDescription("Retrieve aggregate statistics about the recorded event store"),
	)
	s.addTool(stats, "get_event_statistics", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.recorder == nil || s.recorder.Disabled() {
			return jsonResult(recorder.Stats{})
		}
		st, err := s.recorder.Stats()
		if err != nil {
			return errResult(err)
		}
		return jsonResult(st)
	})
}
