// Package render presents answers, conversation traces and live progress on
// a terminal.
//
// NO_COLOR (https://no-color.org/) is respected automatically by lipgloss via
// its color profile detection.
package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"hedgefund/internal/domain"
)

// Role colors follow the analyst team palette: supervisor magenta, valuation
// green, fundamental blue, price yellow, portfolio manager red.
var (
	ColorSupervisor  = lipgloss.AdaptiveColor{Light: "#8e24aa", Dark: "#e040fb"}
	ColorValuation   = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorFundamental = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}
	ColorPrice       = lipgloss.AdaptiveColor{Light: "#f9a825", Dark: "#ffee58"}
	ColorPortfolio   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}

	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
)

var roleColors = map[string]lipgloss.AdaptiveColor{
	domain.FundamentalAnalyst: ColorFundamental,
	domain.ValuationAnalyst:   ColorValuation,
	domain.PriceAnalyst:       ColorPrice,
	domain.PortfolioManager:   ColorPortfolio,
}

// ColorFor returns the panel color of a specialist; routing and unknown
// actors use the supervisor color.
func ColorFor(name string) lipgloss.AdaptiveColor {
	if c, ok := roleColors[name]; ok {
		return c
	}
	return ColorSupervisor
}

var (
	Bold        = lipgloss.NewStyle().Bold(true)
	Dim         = lipgloss.NewStyle().Faint(true)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
)

// panelStyle is the bordered box around one section.
func panelStyle(name string, width int) lipgloss.Style {
	s := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorFor(name)).
		Padding(0, 1)
	if width > 0 {
		s = s.Width(width)
	}
	return s
}

func titleStyle(name string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorFor(name)).Bold(true)
}

// Symbols used in progress and trace output.
var (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolArrowR  = "→"
	SymbolBullet  = "•"
)

// InitSymbols switches to ASCII symbols when HEDGEFUND_ASCII_SYMBOLS is set
// or the locale is explicitly non-UTF-8.
func InitSymbols() {
	if unicodeSupported() {
		SymbolSuccess, SymbolError, SymbolWarning, SymbolArrowR, SymbolBullet = "✓", "✗", "⚠", "→", "•"
		return
	}
	SymbolSuccess, SymbolError, SymbolWarning, SymbolArrowR, SymbolBullet = "[OK]", "[ERR]", "[!]", "->", "*"
}

func unicodeSupported() bool {
	if v := os.Getenv("HEDGEFUND_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8")
	}
	return true
}

func init() {
	InitSymbols()
}

// DisplayName turns "price_analyst" into "Price Analyst".
func DisplayName(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
