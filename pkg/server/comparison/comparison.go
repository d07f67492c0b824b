// Package comparison derives spread statistics from an aggregated price set.
package comparison

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/aggregator"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const (
	// DefaultSpreadScale is the number of decimal places of PriceSpreadRate.
	DefaultSpreadScale int32 = 2
	// AverageScale is the number of decimal places of AveragePrice.
	AverageScale int32 = 8
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// SourcePrice is a price attributed to the source that reported it.
type SourcePrice struct {
	Source      string              `json:"source"`
	DisplayName string              `json:"display_name"`
	Region      sources.Region      `json:"region"`
	Price       decimal.Decimal     `json:"price"`
	ChangeRate  decimal.NullDecimal `json:"change_rate"`
	Volume24h   decimal.NullDecimal `json:"volume_24h"`
}

// Result summarizes the dispersion of one symbol's prices across sources.
type Result struct {
	Symbol            string          `json:"symbol"`
	TotalSources      int             `json:"total_sources"`
	DomesticCount     int             `json:"domestic_count"`
	ForeignCount      int             `json:"foreign_count"`
	Highest           SourcePrice     `json:"highest"`
	Lowest            SourcePrice     `json:"lowest"`
	PriceSpread       decimal.Decimal `json:"price_spread"`
	PriceSpreadRate   decimal.Decimal `json:"price_spread_rate"`
	AveragePrice      decimal.Decimal `json:"average_price"`
	MedianPrice       decimal.Decimal `json:"median_price"`
	StandardDeviation float64         `json:"standard_deviation"`
	ComputedAt        time.Time       `json:"computed_at"`
}

// Engine computes comparison results. It holds no state besides its
// rounding configuration.
type Engine struct {
	spreadScale int32
}

// New creates an engine that rounds the spread rate to spreadScale places.
// A negative scale selects DefaultSpreadScale.
func New(spreadScale int32) *Engine {
	if spreadScale < 0 {
		spreadScale = DefaultSpreadScale
	}
	return &Engine{spreadScale: spreadScale}
}

// Compare derives the statistics of set. It reports false for an empty set.
// Equal sets give equal results.
func (e *Engine) Compare(set aggregator.PriceSet) (Result, bool) {
	if set.Empty() {
		return Result{}, false
	}

	n := set.Len()
	highest, lowest := set.Quotes[0], set.Quotes[0]
	sum := decimal.Zero
	values := make([]decimal.Decimal, 0, n)
	for _, q := range set.Quotes {
		// strict comparisons: the first quote encountered wins a tie
		if q.Price.GreaterThan(highest.Price) {
			highest = q
		}
		if q.Price.LessThan(lowest.Price) {
			lowest = q
		}
		sum = sum.Add(q.Price)
		values = append(values, q.Price)
	}

	spread := highest.Price.Sub(lowest.Price)
	spreadRate := decimal.Zero
	if !lowest.Price.IsZero() {
		spreadRate = spread.Mul(hundred).DivRound(lowest.Price, e.spreadScale)
	}

	count := decimal.NewFromInt(int64(n))
	mean := sum.Div(count)

	return Result{
		Symbol:            set.Symbol,
		TotalSources:      n,
		DomesticCount:     set.Count(sources.RegionDomestic),
		ForeignCount:      set.Count(sources.RegionForeign),
		Highest:           attribute(highest),
		Lowest:            attribute(lowest),
		PriceSpread:       spread,
		PriceSpreadRate:   spreadRate,
		AveragePrice:      sum.DivRound(count, AverageScale),
		MedianPrice:       median(values),
		StandardDeviation: stdDev(values, mean),
		ComputedAt:        set.CollectedAt,
	}, true
}

func attribute(q sources.Quote) SourcePrice {
	return SourcePrice{
		Source:      q.Source,
		DisplayName: q.DisplayName,
		Region:      q.Region,
		Price:       q.Price,
		ChangeRate:  q.ChangeRate,
		Volume24h:   q.Volume24h,
	}
}

// median returns the central value, or the mean of the two central values
// for an even count. values is sorted in place.
func median(values []decimal.Decimal) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].LessThan(values[j])
	})
	if n%2 == 1 {
		return values[n/2]
	}
	return values[n/2-1].Add(values[n/2]).Div(two)
}

// stdDev returns the population standard deviation around mean.
func stdDev(values []decimal.Decimal, mean decimal.Decimal) float64 {
	if len(values) < 2 {
		return 0
	}

	sumSquaredDev := decimal.Zero
	for _, v := range values {
		deviation := v.Sub(mean)
		sumSquaredDev = sumSquaredDev.Add(deviation.Mul(deviation))
	}

	variance := sumSquaredDev.Div(decimal.NewFromInt(int64(len(values))))
	varianceFloat, _ := variance.Float64()
	return math.Sqrt(varianceFloat)
}
