package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxTickers is the most symbols a single quote request may carry.
const MaxTickers = 10

// tickerPattern matches B3 symbols: four letters, a share class digit pair,
// and an optional fractional-market F suffix (PETR4, TAEE11, VALE3F).
var tickerPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{1,2}F?$`)

// Shared JSON Schema fragments for tool parameters.
const (
	tickerSchemaPattern = `^[A-Za-z]{4}[0-9]{1,2}[Ff]?$`
	tickersSchema       = `{
		"description": "B3 ticker or tickers, e.g. \"PETR4\", \"PETR4,VALE3\" or [\"PETR4\", \"VALE3\"]",
		"oneOf": [
			{"type": "string", "pattern": "^[A-Za-z]{4}[0-9]{1,2}[Ff]?(\\s*,\\s*[A-Za-z]{4}[0-9]{1,2}[Ff]?){0,9}$"},
			{"type": "array", "minItems": 1, "maxItems": 10, "items": {"type": "string", "pattern": "` + tickerSchemaPattern + `"}}
		]
	}`
	rangeSchema = `{"type": "string", "enum": ["1d","5d","1mo","3mo","6mo","1y","2y","5y","10y","ytd","max"]}`
)

// Tickers is a normalized, de-duplicated list of B3 symbols. It accepts a
// JSON string (optionally comma separated) or an array of strings.
type Tickers []string

func (t *Tickers) UnmarshalJSON(data []byte) error {
	var raw []string
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("tickers must be a string or an array of strings")
		}
		raw = strings.Split(s, ",")
	}

	parsed, err := ParseTickers(raw...)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Path returns the comma-joined form used in quote URLs.
func (t Tickers) Path() string { return strings.Join(t, ",") }

// ParseTickers upper-cases, trims and validates symbols, dropping repeats.
func ParseTickers(symbols ...string) (Tickers, error) {
	seen := make(map[string]bool, len(symbols))
	out := make(Tickers, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !tickerPattern.MatchString(s) {
			return nil, fmt.Errorf("invalid ticker %q (want a B3 symbol such as PETR4)", s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one ticker is required")
	}
	if len(out) > MaxTickers {
		return nil, fmt.Errorf("at most %d tickers per request, got %d", MaxTickers, len(out))
	}
	return out, nil
}

// brDateLayout is the DD/MM/YYYY format the macro endpoints expect.
const brDateLayout = "02/01/2006"

// ParseBRDate parses a DD/MM/YYYY date.
func ParseBRDate(name, value string) (time.Time, error) {
	t, err := time.Parse(brDateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q is not a DD/MM/YYYY date", name, value)
	}
	return t, nil
}

// FormatBRDate formats t as DD/MM/YYYY.
func FormatBRDate(t time.Time) string { return t.Format(brDateLayout) }
