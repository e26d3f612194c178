package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerChangeGroupTools() {
	create := mcp.NewTool("create_change_group",
		mcp.WithDescription("Create a change group, optionally enabling auto-poll. If groupId is omitted, one is generated"),
		mcp.WithString("groupId", mcp.Description("Omit to have the broker generate one")),
		mcp.WithNumber("pollRateSeconds", mcp.Description("If > 0, enables auto-poll at this rate")),
	)
	s.addTool(create, "create_change_group", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID := req.GetString("groupId", "")
		pollRate := req.GetFloat("pollRateSeconds", 0)

		g, err := s.adapter.CreateChangeGroup(groupID, pollRate)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(map[string]interface{}{"groupId": g.ID, "state": g.State()})
	})

	addControls := mcp.NewTool("add_controls_to_change_group",
		mcp.WithDescription("Add up to 100 control names to a change group's membership"),
		mcp.WithString("groupId", mcp.Required()),
		mcp.WithArray("controlNames", mcp.Required()),
	)
	s.addTool(addControls, "add_controls_to_change_group", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := req.RequireString("groupId")
		if err != nil {
			return errResult(err)
		}
		names, _ := stringSlice(req, "controlNames")
		if err := s.adapter.AddControlsToChangeGroup(groupID, names); err != nil {
			return errResult(err)
		}
		return jsonResult(map[string]interface{}{"groupId": groupID, "added": len(names)})
	})

	removeControls := mcp.NewTool("remove_controls_from_change_group",
		mcp.WithDescription("Remove control names from a change group's membership"),
		mcp.WithString("groupId", mcp.Required()),
		mcp.WithArray("controlNames", mcp.Required()),
	)
	s.addTool(removeControls, "remove_controls_from_change_group", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := req.RequireString("groupId")
		if err != nil {
			return errResult(err)
		}
		names, _ := stringSlice(req, "controlNames")
		if err := s.adapter.RemoveControlsFromChangeGroup(groupID, names); err != nil {
			return errResult(err)
		}
		return jsonResult(map[string]interface{}{"groupId": groupID, "removed": len(names)})
	})

	poll := mcp.NewTool("poll_change_group",
		mcp.WithDescription("Run one poll on a change group and return the observed deltas"),
		mcp.WithString("groupId", mcp.Required()),
		mcp.WithBoolean("showAll", mcp.Description("Report every member control's current value, not just the ones that changed")),
	)
	s.addTool(poll, "poll_change_group", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := req.RequireString("groupId")
		if err != nil {
			return errResult(err)
		}
		showAll := req.GetBool("showAll", false)
		ev, err := s.adapter.PollChangeGroup(groupID, showAll)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(ev)
	})

	clear := mcp.NewTool("clear_change_group",
		mcp.WithDescription("Empty a change group's membership without destroying it"),
		mcp.WithString("groupId", mcp.Required()),
	)
	s.addTool(clear, "clear_change_group", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := req.RequireString("groupId")
		if err != nil {
			return errResult(err)
		}
		if err := s.adapter.ClearChangeGroup(groupID); err != nil {
			return errResult(err)
		}
		return jsonResult(map[string]string{"groupId": groupID, "state": "cleared"})
	})

	destroy := mcp.NewTool("destroy_change_group",
		mcp.WithDescription("Destroy a change group and stop its auto-poll timer"),
		mcp.WithString("groupId", mcp.Required()),
	)
	s.addTool(destroy, "destroy_change_group", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := req.RequireString("groupId")
		if err != nil {
			return errResult(err)
		}
		if err := s.adapter.DestroyChangeGroup(groupID); err != nil {
			return errResult(err)
		}
		return jsonResult(map[string]string{"groupId": groupID, "state": "destroyed"})
	})

	list := mcp.NewTool("list_change_groups",
		mcp.WithDescription("List the ids of all live change groups"),
	)
	s.addTool(list, "list_change_groups", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.adapter.ListChangeGroups())
	})
}
