package domain

// Done is the RoutingDecision.NextActor value that ends the workflow.
const Done = "DONE"

// Facet is one analytical aspect of a query.
type Facet string

const (
	FacetFundamental Facet = "fundamental"
	FacetValuation   Facet = "valuation"
	FacetPrice       Facet = "price"
)

// FacetPriority is the fixed tie-break order used when several facets are pending.
var FacetPriority = []Facet{FacetFundamental, FacetValuation, FacetPrice}

// Valid reports whether f is a known facet.
func (f Facet) Valid() bool {
	for _, p := range FacetPriority {
		if p == f {
			return true
		}
	}
	return false
}

// RoutingDecision is produced by the router once per cycle.
type RoutingDecision struct {
	NextActor string  `json:"next_actor"`
	Rationale string  `json:"rationale"`
	Facets    []Facet `json:"facets,omitempty"` // set only on plan decisions
}

// IsDone reports whether the decision ends the workflow.
func (d RoutingDecision) IsDone() bool { return d.NextActor == Done }

// Action is what the reasoning collaborator wants the specialist to do next.
// Exactly one of ToolCall and Final is set.
type Action struct {
	ToolCall *ToolCall
	Final    string
}

// IsFinal reports whether the action concludes the activation.
func (a Action) IsFinal() bool { return a.ToolCall == nil }
