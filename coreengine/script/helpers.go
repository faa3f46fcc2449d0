package script

import (
	"strings"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/events"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/state"
)

// parseScopeArg maps the scope-name strings a script passes to
// State.save/load/delete/list_keys onto a state.Scope. "global" and ""
// select the global scope; "user:<id>", "tenant:<id>" and "session:<id>"
// select the matching scoped kind; anything else is a custom-scope name.
func parseScopeArg(raw string, fallback state.Scope) state.Scope {
	if raw == "" || raw == "global" {
		return state.Global
	}
	if kind, id, found := strings.Cut(raw, ":"); found {
		switch kind {
		case "user":
			return state.User(id)
		case "tenant":
			return state.Tenant(id)
		case "session":
			return state.Session(id)
		case "custom":
			return state.Custom(id)
		}
	}
	return state.Custom(raw)
}

// newPublishedEvent builds a UniversalEvent for Event.publish(type, data),
// sourced as "script" since the publishing identity is the script engine
// itself rather than a named kernel component.
func newPublishedEvent(eventType string, data any) (events.UniversalEvent, error) {
	return events.NewUniversalEvent(eventType, "script", "", data)
}
