package multiagent

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"hedgefund/internal/domain"
)

// Router picks the next actor from the conversation state alone.
type Router interface {
	Next(state *domain.ConversationState) domain.RoutingDecision
}

// facetSpecialists maps each facet to the specialist that covers it.
var facetSpecialists = map[domain.Facet]string{
	domain.FacetFundamental: domain.FundamentalAnalyst,
	domain.FacetValuation:   domain.ValuationAnalyst,
	domain.FacetPrice:       domain.PriceAnalyst,
}

// facetKeywords are matched at word starts against the lowercased query,
// so stems like "subvalorizad" cover every inflection.
var facetKeywords = map[domain.Facet][]string{
	domain.FacetFundamental: {
		"fundamental", "financial health", "financials", "balance sheet", "income statement",
		"revenue", "profit", "earnings", "debt", "margin", "ebitda", "cash flow",
		"liquidity", "leverage", "solvency",
		"saúde financeira", "saude financeira", "balanço", "balanco", "demonstraç", "demonstrac",
		"receita", "lucro", "dívida", "divida", "endividamento", "margem", "fluxo de caixa",
		"liquidez", "alavancagem", "resultado",
	},
	domain.FacetValuation: {
		"valuation", "fair value", "intrinsic value", "undervalued", "overvalued", "multiple",
		"p/e", "p/l", "p/vp", "ev/ebitda", "price to book", "price-to-earnings", "dividend",
		"yield", "roe", "key statistics", "cheap", "expensive",
		"avaliaç", "avaliac", "valor justo", "valor intrínseco", "valor intrinseco",
		"subvalorizad", "sobrevalorizad", "múltiplo", "multiplo", "dividendo", "indicadores",
	},
	domain.FacetPrice: {
		"price", "trend", "chart", "momentum", "support", "resistance", "moving average",
		"technical", "performance", "quote", "volatility", "rally", "drop",
		"preço", "preco", "cotaç", "cotac", "tendência", "tendencia", "gráfico", "grafico",
		"suporte", "resistência", "resistencia", "média móvel", "media movel", "técnic",
		"tecnic", "desempenho", "volatilidade", "alta", "queda",
	},
}

// SpecialistForFacet returns the specialist covering f.
func SpecialistForFacet(f domain.Facet) (string, bool) {
	name, ok := facetSpecialists[f]
	return name, ok
}

// DetectFacets returns the facets whose keywords occur in query, in priority order.
func DetectFacets(query string) []domain.Facet {
	text := " " + normalizeQuery(query) + " "
	var out []domain.Facet
	for _, f := range domain.FacetPriority {
		for _, kw := range facetKeywords[f] {
			if strings.Contains(text, " "+kw) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// normalizeQuery lowercases and turns punctuation into spaces, keeping '/'
// for ratio names like p/l.
func normalizeQuery(q string) string {
	q = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/' || r == '-' {
			return unicode.ToLower(r)
		}
		return ' '
	}, q)
	return strings.Join(strings.Fields(q), " ")
}

// FacetRouter sends each planned facet to its specialist once, in priority
// order, then answers DONE.
type FacetRouter struct {
	enabled map[string]bool
	logger  *slog.Logger
}

// NewFacetRouter creates a router restricted to the enabled specialists.
func NewFacetRouter(enabled []string, logger *slog.Logger) *FacetRouter {
	if logger == nil {
		logger = discardLogger()
	}
	r := &FacetRouter{enabled: make(map[string]bool, len(enabled)), logger: logger}
	for _, name := range enabled {
		r.enabled[name] = true
	}
	return r
}

// Plan returns the enabled facets relevant to query. With no keyword match
// every enabled facet is planned.
func (r *FacetRouter) Plan(query string) []domain.Facet {
	if plan := r.filter(DetectFacets(query)); len(plan) > 0 {
		return plan
	}
	return r.filter(domain.FacetPriority)
}

func (r *FacetRouter) filter(facets []domain.Facet) []domain.Facet {
	want := make(map[domain.Facet]bool, len(facets))
	for _, f := range facets {
		want[f] = true
	}
	var out []domain.Facet
	for _, f := range domain.FacetPriority {
		if want[f] && r.enabled[facetSpecialists[f]] {
			out = append(out, f)
		}
	}
	return out
}

// planOf returns the recorded plan, or derives one from the query.
func (r *FacetRouter) planOf(state *domain.ConversationState) []domain.Facet {
	for _, m := range state.Messages() {
		if m.Role == domain.RoleRouter && m.Decision != nil && len(m.Decision.Facets) > 0 {
			if plan := r.filter(m.Decision.Facets); len(plan) > 0 {
				return plan
			}
			break
		}
	}
	return r.Plan(state.Query())
}

// Next is a pure function of state.
func (r *FacetRouter) Next(state *domain.ConversationState) domain.RoutingDecision {
	plan := r.planOf(state)
	for _, f := range plan {
		name := facetSpecialists[f]
		if _, done := state.Concluded(name); done {
			continue
		}
		r.logger.Debug("routing", "facet", f, "specialist", name)
		return domain.RoutingDecision{
			NextActor: name,
			Rationale: fmt.Sprintf("%s analysis pending", f),
		}
	}
	return domain.RoutingDecision{
		NextActor: domain.Done,
		Rationale: fmt.Sprintf("all planned facets concluded (%s)", joinFacets(plan)),
	}
}

func joinFacets(fs []domain.Facet) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// discardLogger returns a no-op logger for components created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var _ Router = (*FacetRouter)(nil)
