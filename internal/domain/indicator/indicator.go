// Package indicator computes technical indicators over closing-price series.
package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind names a supported indicator.
type Kind string

const (
	SMA Kind = "sma"
	EMA Kind = "ema"
	RSI Kind = "rsi"
)

var hundred = decimal.NewFromInt(100)

// Kinds lists the supported indicators.
func Kinds() []string {
	return []string{string(SMA), string(EMA), string(RSI)}
}

// MinHistory is the number of prices needed to produce the first value.
func MinHistory(kind Kind, period int) int {
	if kind == RSI {
		return period + 1
	}
	return period
}

// Compute returns indicator values aligned to the tail of prices: value i belongs
// to prices[len(prices)-len(values)+i].
func Compute(kind Kind, prices []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("period must be at least 1")
	}
	if need := MinHistory(kind, period); len(prices) < need {
		return nil, fmt.Errorf("need at least %d prices, have %d", need, len(prices))
	}
	switch kind {
	case SMA:
		return simpleMovingAverage(prices, period), nil
	case EMA:
		return exponentialMovingAverage(prices, period), nil
	case RSI:
		return relativeStrengthIndex(prices, period), nil
	}
	return nil, fmt.Errorf("unsupported indicator %q", kind)
}

func simpleMovingAverage(prices []decimal.Decimal, period int) []decimal.Decimal {
	p := decimal.NewFromInt(int64(period))
	out := make([]decimal.Decimal, 0, len(prices)-period+1)
	sum := decimal.Zero
	for i, price := range prices {
		sum = sum.Add(price)
		if i >= period {
			sum = sum.Sub(prices[i-period])
		}
		if i >= period-1 {
			out = append(out, sum.Div(p))
		}
	}
	return out
}

// exponentialMovingAverage seeds with the SMA of the first period prices.
func exponentialMovingAverage(prices []decimal.Decimal, period int) []decimal.Decimal {
	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	seed := decimal.Sum(prices[0], prices[1:period]...).Div(decimal.NewFromInt(int64(period)))

	out := make([]decimal.Decimal, 0, len(prices)-period+1)
	out = append(out, seed)
	prev := seed
	for _, price := range prices[period:] {
		prev = price.Sub(prev).Mul(k).Add(prev)
		out = append(out, prev)
	}
	return out
}

// relativeStrengthIndex uses Wilder smoothing.
func relativeStrengthIndex(prices []decimal.Decimal, period int) []decimal.Decimal {
	p := decimal.NewFromInt(int64(period))
	pMinus1 := decimal.NewFromInt(int64(period - 1))

	var avgGain, avgLoss decimal.Decimal
	for i := 1; i <= period; i++ {
		gain, loss := change(prices[i-1], prices[i])
		avgGain = avgGain.Add(gain)
		avgLoss = avgLoss.Add(loss)
	}
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)

	out := make([]decimal.Decimal, 0, len(prices)-period)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := period + 1; i < len(prices); i++ {
		gain, loss := change(prices[i-1], prices[i])
		avgGain = avgGain.Mul(pMinus1).Add(gain).Div(p)
		avgLoss = avgLoss.Mul(pMinus1).Add(loss).Div(p)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func change(prev, cur decimal.Decimal) (gain, loss decimal.Decimal) {
	diff := cur.Sub(prev)
	if diff.IsPositive() {
		return diff, decimal.Zero
	}
	return decimal.Zero, diff.Neg()
}

func rsiValue(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		if avgGain.IsZero() {
			return decimal.NewFromInt(50)
		}
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}
