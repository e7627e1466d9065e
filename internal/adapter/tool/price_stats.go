package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

// PriceStatsTool summarizes a ticker's price history into trend statistics,
// so the model reasons over a few numbers instead of hundreds of candles.
type PriceStatsTool struct {
	client *BrapiClient
	logger *slog.Logger
}

// NewPriceStatsTool creates get_price_statistics.
func NewPriceStatsTool(client *BrapiClient, logger *slog.Logger) *PriceStatsTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PriceStatsTool{client: client, logger: logger}
}

func (t *PriceStatsTool) Name() string { return "get_price_statistics" }
func (t *PriceStatsTool) Description() string {
	return "Price trend statistics for one B3 ticker over a range: change, high/low, moving averages (20/50), 20-period momentum and average volume."
}

func (t *PriceStatsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"ticker": {"type": "string", "pattern": "` + tickerSchemaPattern + `"},
				"range": {"type": "string", "enum": ["1mo","3mo","6mo","1y","2y","5y"], "description": "History window (default 6mo)"},
				"interval": {"type": "string", "enum": ["1d","1wk","1mo"], "description": "Candle size (default 1d)"}
			},
			"required": ["ticker"],
			"additionalProperties": false
		}`),
	}
}

type priceStatsParams struct {
	Ticker   string `json:"ticker"`
	Range    string `json:"range,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// candle is one entry of brapi's historicalDataPrice. Missing prices are null.
type candle struct {
	Date   int64    `json:"date"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

// PriceStats is the tool's output.
type PriceStats struct {
	Symbol        string           `json:"symbol"`
	Currency      string           `json:"currency,omitempty"`
	Range         string           `json:"range"`
	Interval      string           `json:"interval"`
	Points        int              `json:"points"`
	From          string           `json:"from"`
	To            string           `json:"to"`
	FirstClose    decimal.Decimal  `json:"first_close"`
	LastClose     decimal.Decimal  `json:"last_close"`
	ChangePct     decimal.Decimal  `json:"change_pct"`
	High          decimal.Decimal  `json:"high"`
	Low           decimal.Decimal  `json:"low"`
	SMA20         *decimal.Decimal `json:"sma_20,omitempty"`
	SMA50         *decimal.Decimal `json:"sma_50,omitempty"`
	Momentum20Pct *decimal.Decimal `json:"momentum_20_pct,omitempty"`
	AvgVolume     *decimal.Decimal `json:"avg_volume,omitempty"`
	Trend         string           `json:"trend"`
}

func (t *PriceStatsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.Name(), t.logger, params,
		func(ctx context.Context, span trace.Span, p priceStatsParams) (any, error) {
			tickers, err := ParseTickers(p.Ticker)
			if err != nil {
				return InvalidArgs(t.Name(), "%v", err), nil
			}
			symbol := tickers[0]
			span.SetAttributes(tracer.StringAttr("tool.tickers", symbol))
			if p.Range == "" {
				p.Range = "6mo"
			}
			if p.Interval == "" {
				p.Interval = "1d"
			}

			q := url.Values{}
			q.Set("range", p.Range)
			q.Set("interval", p.Interval)
			body, err := t.client.Get(ctx, "/quote/"+symbol, q)
			if err != nil {
				return nil, err
			}
			results, err := decodeQuoteResults(body)
			if err != nil {
				return nil, err
			}

			var history []candle
			if raw, ok := results[0]["historicalDataPrice"]; ok {
				if err := json.Unmarshal(raw, &history); err != nil {
					return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrMalformedResponse, "historicalDataPrice: "+err.Error())
				}
			}
			stats, ok := computePriceStats(history)
			if !ok {
				return nil, domain.NewSubSystemError("brapi", "decode", domain.ErrNotFound, "no price history for "+symbol)
			}
			stats.Symbol = symbol
			stats.Range = p.Range
			stats.Interval = p.Interval
			if cur, err := stringField(results[0], "currency"); err != nil {
				t.logger.Debug("currency omitted", "ticker", symbol, "error", err)
			} else {
				stats.Currency = cur
			}
			return stats, nil
		},
	)
}

var hundred = decimal.NewFromInt(100)

// computePriceStats derives statistics from candles in chronological order.
// It reports false when no candle carries a close price.
func computePriceStats(history []candle) (PriceStats, bool) {
	type point struct {
		date             int64
		close, high, low decimal.Decimal
		volume           *decimal.Decimal
	}
	points := make([]point, 0, len(history))
	for _, c := range history {
		if c.Close == nil {
			continue
		}
		cl := decimal.NewFromFloat(*c.Close)
		pt := point{date: c.Date, close: cl, high: cl, low: cl}
		if c.High != nil {
			pt.high = decimal.NewFromFloat(*c.High)
		}
		if c.Low != nil {
			pt.low = decimal.NewFromFloat(*c.Low)
		}
		if c.Volume != nil {
			v := decimal.NewFromFloat(*c.Volume)
			pt.volume = &v
		}
		points = append(points, pt)
	}
	if len(points) == 0 {
		return PriceStats{}, false
	}

	first, last := points[0], points[len(points)-1]
	s := PriceStats{
		Points:     len(points),
		From:       time.Unix(first.date, 0).UTC().Format(time.DateOnly),
		To:         time.Unix(last.date, 0).UTC().Format(time.DateOnly),
		FirstClose: first.close,
		LastClose:  last.close,
		High:       first.high,
		Low:        first.low,
	}
	s.ChangePct = pctChange(first.close, last.close)

	var volSum decimal.Decimal
	volN := 0
	for _, pt := range points {
		s.High = decimal.Max(s.High, pt.high)
		s.Low = decimal.Min(s.Low, pt.low)
		if pt.volume != nil {
			volSum = volSum.Add(*pt.volume)
			volN++
		}
	}
	if volN > 0 {
		avg := volSum.Div(decimal.NewFromInt(int64(volN))).Round(0)
		s.AvgVolume = &avg
	}

	closes := make([]decimal.Decimal, len(points))
	for i, pt := range points {
		closes[i] = pt.close
	}
	s.SMA20 = sma(closes, 20)
	s.SMA50 = sma(closes, 50)
	if len(closes) > 20 {
		m := pctChange(closes[len(closes)-21], last.close)
		s.Momentum20Pct = &m
	}
	s.Trend = trend(last.close, s.SMA20, s.SMA50, s.ChangePct)
	return s, true
}

// sma is the simple moving average of the last n closes, or nil when there are fewer.
func sma(closes []decimal.Decimal, n int) *decimal.Decimal {
	if len(closes) < n {
		return nil
	}
	avg := decimal.Avg(closes[len(closes)-n], closes[len(closes)-n+1:]...).Round(4)
	return &avg
}

func pctChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred).Round(2)
}

// trend labels the series: price above both averages is an uptrend, below
// both a downtrend. Without averages the sign of the change decides.
func trend(last decimal.Decimal, sma20, sma50 *decimal.Decimal, change decimal.Decimal) string {
	switch {
	case sma20 != nil && sma50 != nil:
		if last.GreaterThan(*sma20) && sma20.GreaterThan(*sma50) {
			return "uptrend"
		}
		if last.LessThan(*sma20) && sma20.LessThan(*sma50) {
			return "downtrend"
		}
		return "sideways"
	case change.GreaterThan(decimal.NewFromInt(2)):
		return "uptrend"
	case change.LessThan(decimal.NewFromInt(-2)):
		return "downtrend"
	default:
		return "sideways"
	}
}
