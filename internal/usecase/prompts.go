package usecase

import (
	"fmt"
	"strings"

	"hedgefund/internal/domain"
)

const groundingRules = `
- Focus on the most important insights and recommendations; output only relevant data.
- Explain insights grounded only on the data you retrieved with your tools, never on outside knowledge.
- The question may be broader than your scope. Only output insights within your scope.
- If a tool reports that a ticker was not found, say so plainly instead of guessing.
- Answer in the language of the question.`

// DefaultSystemPrompts holds the built-in role descriptions per specialist.
var DefaultSystemPrompts = map[string]string{
	domain.FundamentalAnalyst: `You are the fundamental analyst of a hedge fund team covering Brazilian stocks listed on B3.
- Collect data: retrieve income statements and balance sheets over multiple periods.
- Calculate key ratios: profitability, liquidity, leverage and efficiency.
- Analyze trends: identify improvements or declines across periods.
- Evaluate financial health: summarize insights on stability and risk.
- Provide recommendations based on your findings.
- Only output fundamental analysis insights, not valuation or price insights.` + groundingRules,

	domain.ValuationAnalyst: `You are the valuation analyst of a hedge fund team covering Brazilian stocks listed on B3.
- Extract data: use key statistics and financial data, including valuation, profitability and growth indicators.
- Interpret metrics: analyze the ratios to evaluate the company's financial and operational standing.
- Summarize insights: give a clear overview of the valuation and its risks or opportunities.
- Only output valuation analysis insights, not fundamental or price insights.` + groundingRules,

	domain.PriceAnalyst: `You are the price analyst of a hedge fund team covering Brazilian stocks listed on B3.
- Focus on price evolution and price patterns.
- Study price movements and support/resistance levels.
- Analyze momentum and trend.
- Identify trading opportunities based on price action.
- Only output price analysis insights, not fundamental or valuation insights.` + groundingRules,
}

// DefaultDescriptions are the one-line role summaries shown by the CLI.
var DefaultDescriptions = map[string]string{
	domain.FundamentalAnalyst: "Analyzes financial statements and company health",
	domain.ValuationAnalyst:   "Analyzes valuation ratios and key statistics",
	domain.PriceAnalyst:       "Analyzes price action and trends",
}

// SummaryPrompt is the portfolio manager's synthesis instruction.
const SummaryPrompt = `You are a portfolio manager responsible for synthesizing analysis from your team of analysts.
Review all the analysts' reports and provide a comprehensive summary including:
1. Key financial metrics and their implications (only when you have this data)
2. Price analysis insights (only when you have this data)
3. Market data insights (only when you have this data)
4. An overall investment recommendation
Make sure to:
- Be analytical and concise.
- Consider both bullish and bearish signals.
- Provide clear, actionable recommendations.
- Identify key risks and potential catalysts.
- Ground every statement in the reports; do not add outside data.
- If a report is marked incomplete, say which conclusions are uncertain.`

// forceConclusionPrompt is appended when the step budget is exhausted.
const forceConclusionPrompt = `

Your tool budget for this question is exhausted. Do not request more tools.
Write your conclusion now using only the data already retrieved, and state
which parts of the analysis could not be completed.`

// buildSystemPrompt returns the system message for a decision.
func buildSystemPrompt(identity domain.SpecialistIdentity, tools []domain.ToolSchema, mustConclude bool) string {
	var sb strings.Builder
	sb.WriteString(identity.SystemPrompt)
	if len(tools) > 0 && !mustConclude {
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		fmt.Fprintf(&sb, "\n\nYou may call only these tools: %s. Call one tool at a time.", strings.Join(names, ", "))
	}
	if mustConclude {
		sb.WriteString(forceConclusionPrompt)
	}
	return sb.String()
}

// formatReports renders specialist sections as the summarizer's input.
func formatReports(sections []domain.Section) string {
	var sb strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&sb, "## Report from %s", s.Specialist)
		if s.Partial {
			sb.WriteString(" (incomplete)")
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(s.Text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}
