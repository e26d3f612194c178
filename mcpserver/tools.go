package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qsysmcp/broker/adapter"
)

func (s *Server) registerTools() {
	s.registerDiscoveryTools()
	s.registerControlTools()
	s.registerChangeGroupTools()
	s.registerEventTools()
	s.registerConnectionTools()
	s.registerMiscTools()
}

func (s *Server) addTool(tool mcp.Tool, toolID string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) {
	s.mcp.AddTool(tool, s.wrap(toolID, handler))
}

func (s *Server) registerDiscoveryTools() {
	listComponents := mcp.NewTool("list_components",
		mcp.WithDescription("List the core's components, optionally filtered by a name regex"),
		mcp.WithString("filter", mcp.Description("Regex applied to component names")),
		mcp.WithBoolean("includeProperties", mcp.Description("Include each component's property map")),
	)
	s.addTool(listComponents, "list_components", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := req.GetString("filter", "")
		includeProperties := req.GetBool("includeProperties", false)

		components, err := s.adapter.ListComponents(ctx, filter)
		if err != nil {
			return errResult(err)
		}

		type out struct {
			Name       string            `json:"name"`
			Type       string            `json:"type"`
			Properties map[string]string `json:"properties,omitempty"`
		}
		results := make([]out, 0, len(components))
		for _, c := range components {
			o := out{Name: c.Name, Type: c.Type}
			if includeProperties {
				o.Properties = c.Properties
			}
			results = append(results, o)
		}
		return jsonResult(results)
	})

	listControls := mcp.NewTool("list_controls",
		mcp.WithDescription("List a component's controls"),
		mcp.WithString("component", mcp.Required(), mcp.Description("Component name")),
		mcp.WithString("controlType", mcp.Description("Filter by control type, or 'all'")),
		mcp.WithBoolean("includeMetadata", mcp.Description("Include bounds/direction/position metadata")),
	)
	s.addTool(listControls, "list_controls", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		component, err := req.RequireString("component")
		if err != nil {
			return errResult(err)
		}
		controlType := req.GetString("controlType", "all")
		includeMetadata := req.GetBool("includeMetadata", false)

		controls, err := s.adapter.ListControls(ctx, component)
		if err != nil {
			return errResult(err)
		}

		results := make([]controlDescriptorJSON, 0, len(controls))
		for _, c := range controls {
			if controlType != "" && controlType != "all" && c.Type != controlType {
				continue
			}
			results = append(results, newControlDescriptorJSON(c, includeMetadata))
		}
		return jsonResult(results)
	})
}

type controlDescriptorJSON struct {
	Name      string      `json:"name"`
	Value     interface{} `json:"value"`
	String    string      `json:"string"`
	Type      string      `json:"type,omitempty"`
	Direction string      `json:"direction,omitempty"`
	Position  *float64    `json:"position,omitempty"`
}

func newControlDescriptorJSON(c adapter.Control, includeMetadata bool) controlDescriptorJSON {
	d := controlDescriptorJSON{Name: c.FQName, Value: c.Value, String: c.String}
	if includeMetadata {
		d.Type = c.Type
		d.Direction = string(c.Direction)
		pos := c.Position
		d.Position = &pos
	}
	return d
}

func (s *Server) registerControlTools() {
	getValues := mcp.NewTool("get_control_values",
		mcp.WithDescription("Get current values for up to 100 fully-qualified control names"),
		mcp.WithArray("controlNames", mcp.Required(), mcp.Description("Fully-qualified control names, e.g. Gain1.gain")),
	)
	s.addTool(getValues, "get_control_values", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := stringSlice(req, "controlNames")
		if err != nil {
			return errResult(err)
		}
		results, err := s.adapter.GetControlValues(ctx, names)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(results)
	})

	setValues := mcp.NewTool("set_control_values",
		mcp.WithDescription("Set one or more control values; each entry succeeds or fails independently. ramp/fade are accepted for caller compatibility but ignored; ignored fields are reported back per entry"),
		mcp.WithArray("controls", mcp.Required(), mcp.Description("[{name, value, validate?, ramp?, fade?}]")),
	)
	s.addTool(setValues, "set_control_values", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, ok := req.GetArguments()["controls"].([]interface{})
		if !ok {
			return errResult(errMissingArray("controls"))
		}

		sets := make([]adapter.ControlSetRequest, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			validate, _ := m["validate"].(bool)
			set := adapter.ControlSetRequest{Name: name, Value: m["value"], Validate: validate}
			if rampVal, ok := asFloat(m["ramp"]); ok {
				set.Ramp = &rampVal
			}
			if fadeVal, ok := asFloat(m["fade"]); ok {
				set.Fade = &fadeVal
			}
			sets = append(sets, set)
		}

		results, err := s.adapter.SetControlValues(ctx, sets)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(results)
	})

	componentGet := mcp.NewTool("qsys_component_get",
		mcp.WithDescription("Get a component's controls, optionally filtered to a subset of names"),
		mcp.WithString("component", mcp.Required()),
		mcp.WithArray("controls", mcp.Description("Optional control names to filter to")),
	)
	s.addTool(componentGet, "qsys_component_get", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		component, err := req.RequireString("component")
		if err != nil {
			return errResult(err)
		}
		names, _ := stringSlice(req, "controls")

		controls, err := s.adapter.ComponentGet(ctx, component, names)
		if err != nil {
			return errResult(err)
		}

		out := make([]controlDescriptorJSON, 0, len(controls))
		for _, c := range controls {
			out = append(out, newControlDescriptorJSON(c, true))
		}
		return jsonResult(map[string]interface{}{"component": component, "controls": out})
	})

	status := mcp.NewTool("query_core_status",
		mcp.WithDescription("Query the core's platform, state, design and redundancy status"),
		mcp.WithBoolean("includePerformance"),
		mcp.WithBoolean("includeNetworkInfo"),
		mcp.WithBoolean("includeDetails"),
	)
	s.addTool(status, "query_core_status", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := s.adapter.QueryCoreStatus(ctx)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(st)
	})
}

func (s *Server) registerMiscTools() {
	echo := mcp.NewTool("echo",
		mcp.WithDescription("Echo a message back; available without credentials"),
		mcp.WithString("message", mcp.Required()),
	)
	s.addTool(echo, "echo", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return errResult(err)
		}
		return jsonResult(map[string]string{"message": message})
	})

	docs := mcp.NewTool("get_api_documentation",
		mcp.WithDescription("Retrieve documentation for the broker's tool catalogue"),
		mcp.WithString("query_type", mcp.Required()),
		mcp.WithString("search"),
	)
	s.addTool(docs, "get_api_documentation", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryType, err := req.RequireString("query_type")
		if err != nil {
			return errResult(err)
		}
		search := req.GetString("search", "")
		return jsonResult(apiDocumentation(queryType, search))
	})
}

func stringSlice(req mcp.CallToolRequest, field string) ([]string, error) {
	raw, ok := req.GetArguments()[field].([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func errMissingArray(field string) error {
	return errMissing(field + " must be an array")
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
