package domain

// Default specialist names.
const (
	FundamentalAnalyst = "fundamental_analyst"
	ValuationAnalyst   = "valuation_analyst"
	PriceAnalyst       = "price_analyst"
	PortfolioManager   = "portfolio_manager"
)

// SpecialistIdentity describes one role-bound reasoning unit.
type SpecialistIdentity struct {
	Name         string   `json:"name"          yaml:"name"`
	Facet        Facet    `json:"facet"         yaml:"facet"`
	Description  string   `json:"description"   yaml:"description"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	Tools        []string `json:"tools"         yaml:"tools"`
	MaxSteps     int      `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
}
