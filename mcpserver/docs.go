package mcpserver

import "strings"

// toolDoc is one entry in the catalogue served by get_api_documentation.
type toolDoc struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

var catalogue = []toolDoc{
	{"list_components", "discovery", "List the core's components, optionally filtered by a name regex"},
	{"list_controls", "discovery", "List a component's controls"},
	{"get_control_values", "control", "Get current values for up to 100 fully-qualified control names"},
	{"set_control_values", "control", "Set one or more control values independently"},
	{"qsys_component_get", "control", "Get a component's controls, optionally filtered to a subset of names"},
	{"query_core_status", "control", "Query the core's platform, state, design and redundancy status"},
	{"create_change_group", "change-group", "Create a change group, optionally enabling auto-poll"},
	{"add_controls_to_change_group", "change-group", "Add control names to a change group's membership"},
	{"remove_controls_from_change_group", "change-group", "Remove control names from a change group's membership"},
	{"poll_change_group", "change-group", "Run one poll on a change group and return the observed deltas"},
	{"clear_change_group", "change-group", "Empty a change group's membership without destroying it"},
	{"destroy_change_group", "change-group", "Destroy a change group and stop its auto-poll timer"},
	{"list_change_groups", "change-group", "List the ids of all live change groups"},
	{"query_change_events", "events", "Query recorded control-change events"},
	{"get_event_statistics", "events", "Retrieve aggregate statistics about the recorded event store"},
	{"manage_connection", "connection", "Inspect or control the core connection"},
	{"get_api_documentation", "meta", "Retrieve documentation for the broker's tool catalogue"},
	{"echo", "meta", "Echo a message back; available without credentials"},
}

// apiDocumentation answers get_api_documentation. query_type selects
// "catalogue" (default, full list), "category" (filtered by search), or
// "tool" (a single tool's entry looked up by name via search).
func apiDocumentation(queryType, search string) interface{} {
	switch queryType {
	case "category":
		var out []toolDoc
		for _, d := range catalogue {
			if d.Category == search {
				out = append(out, d)
			}
		}
		return out

	case "tool":
		for _, d := range catalogue {
			if d.Name == search {
				return d
			}
		}
		return map[string]string{"error": "unknown tool " + search}

	default:
		if search == "" {
			return catalogue
		}
		var out []toolDoc
		for _, d := range catalogue {
			if strings.Contains(d.Name, search) || strings.Contains(d.Description, search) {
				out = append(out, d)
			}
		}
		return out
	}
}
