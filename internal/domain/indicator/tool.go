package indicator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"jan-server/services/query-tools/internal/domain/normalize"
	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/utils/platformerrors"
)

const (
	ToolName = "calculate_indicator"

	defaultLimit = 30
	maxLimit     = 500
	maxPeriod    = 250
)

// PricePoint is one closing price.
type PricePoint struct {
	Time  time.Time
	Close decimal.Decimal
}

// PriceSource returns the most recent closes for a symbol in ascending time order.
type PriceSource interface {
	Closes(ctx context.Context, symbol string, count int) ([]PricePoint, error)
}

// CalculateTool computes SMA, EMA or RSI over stored closing prices.
type CalculateTool struct {
	source PriceSource
}

func NewCalculateTool(source PriceSource) *CalculateTool {
	return &CalculateTool{source: source}
}

func (t *CalculateTool) Descriptor() toolcall.Descriptor {
	return toolcall.Descriptor{
		Name: ToolName,
		Description: "Compute a technical indicator (sma, ema or rsi) over the stored closing prices of a symbol " +
			"and return the most recent values with their timestamps.",
		Params: []toolcall.Param{
			{Name: "symbol", Type: toolcall.TypeString, Required: true, Description: "Ticker symbol, e.g. AAPL."},
			{Name: "indicator", Type: toolcall.TypeString, Required: true, Enum: Kinds(), Description: "Indicator to compute."},
			{Name: "period", Type: toolcall.TypeInteger, Required: true, Description: fmt.Sprintf("Look-back window, 1 to %d (rsi needs at least 2).", maxPeriod)},
			{Name: "limit", Type: toolcall.TypeInteger, Description: fmt.Sprintf("Number of most recent values to return, default %d, max %d.", defaultLimit, maxLimit)},
		},
		ReadOnly: true,
	}
}

type point struct {
	Time  string `json:"time"`
	Value string `json:"value"`
}

type output struct {
	Symbol    string  `json:"symbol"`
	Indicator string  `json:"indicator"`
	Period    int     `json:"period"`
	Values    []point `json:"values"`
}

func (t *CalculateTool) Call(ctx context.Context, args toolcall.Arguments) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(args.String("symbol")))
	kind := Kind(args.String("indicator"))
	period64, _ := args.Int("period")
	limit64, ok := args.Int("limit")
	if !ok {
		limit64 = defaultLimit
	}

	minPeriod := int64(1)
	if kind == RSI {
		minPeriod = 2
	}
	switch {
	case symbol == "":
		return "", invalid(ctx, "symbol must not be empty")
	case period64 < minPeriod || period64 > maxPeriod:
		return "", invalid(ctx, fmt.Sprintf("period for %s must be between %d and %d", kind, minPeriod, maxPeriod))
	case limit64 < 1 || limit64 > maxLimit:
		return "", invalid(ctx, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}
	period, limit := int(period64), int(limit64)

	// EMA and RSI smooth over the whole history, so fetch extra warm-up prices.
	fetch := limit + MinHistory(kind, period) - 1
	if kind != SMA {
		fetch += 2 * period
	}

	prices, err := t.source.Closes(ctx, symbol, fetch)
	if err != nil {
		return "", err
	}
	if need := MinHistory(kind, period); len(prices) < need {
		return "", invalid(ctx, fmt.Sprintf("not enough price history for %s: have %d closes, %s(%d) needs %d", symbol, len(prices), kind, period, need))
	}

	closes := make([]decimal.Decimal, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}
	values, err := Compute(kind, closes, period)
	if err != nil {
		return "", invalid(ctx, err.Error())
	}

	offset := len(prices) - len(values)
	if len(values) > limit {
		values = values[len(values)-limit:]
		offset = len(prices) - limit
	}
	out := output{Symbol: symbol, Indicator: string(kind), Period: period, Values: make([]point, len(values))}
	for i, v := range values {
		out.Values[i] = point{Time: prices[offset+i].Time.UTC().Format(time.RFC3339), Value: v.StringFixed(4)}
	}
	return normalize.JSON(out)
}

func invalid(ctx context.Context, message string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, message, nil)
}
