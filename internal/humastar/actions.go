package humastar

import (
	"fmt"
	"strings"
)

// Action is a state-dependent hypermedia action link. Response bodies
// implement Actor to emit RFC 8288 Link headers with method and title
// extension parameters:
//
//	</api/v1/areas/42/reports>; rel="report"; method="POST"; title="Report a problem"
type Action struct {
	Rel    string // IANA rel or custom (e.g., "report", "delete")
	Href   string // target URL
	Method string // HTTP method: POST, PATCH, DELETE, etc.
	Title  string // optional human-readable label
	Schema string // optional JSON Schema URL for the request body
}

// Actor is implemented by response bodies that provide state-dependent actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	for _, p := range [][2]string{{"method", a.Method}, {"title", a.Title}, {"schema", a.Schema}} {
		if p[1] != "" {
			fmt.Fprintf(&b, `; %s="%s"`, p[0], p[1])
		}
	}
	return b.String()
}

// ActionDef is a reusable action template. Pattern uses a single %s verb
// for the resource id.
type ActionDef struct {
	Rel     string
	Pattern string // e.g. "/api/v1/areas/%s/reports"
	Method  string
	Title   string
	Schema  string
	// OwnerOnly hides the action from callers that do not own the resource.
	OwnerOnly bool
}

// ActionsFor expands defs for one resource. Owner-only actions are
// included only when owner is true.
func ActionsFor(id string, owner bool, defs []ActionDef) []Action {
	actions := make([]Action, 0, len(defs))
	for _, d := range defs {
		if d.OwnerOnly && !owner {
			continue
		}
		actions = append(actions, Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		})
	}
	return actions
}
