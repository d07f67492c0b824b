package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeRegion
	scopeSource
)

// Scope selects which sources a collection queries.
type Scope struct {
	kind   scopeKind
	region sources.Region
	source string
}

// All queries every registered source.
func All() Scope {
	return Scope{kind: scopeAll}
}

// Region queries the sources of one region.
func Region(r sources.Region) Scope {
	return Scope{kind: scopeRegion, region: r}
}

// Source queries a single named source.
func Source(name string) Scope {
	return Scope{kind: scopeSource, source: strings.TrimSpace(name)}
}

// Kind returns a low-cardinality label for metrics.
func (s Scope) Kind() string {
	switch s.kind {
	case scopeRegion:
		return "region"
	case scopeSource:
		return "source"
	default:
		return "all"
	}
}

// String returns a stable form usable in cache keys.
func (s Scope) String() string {
	switch s.kind {
	case scopeRegion:
		return "region:" + string(s.region)
	case scopeSource:
		return "source:" + strings.ToLower(s.source)
	default:
		return "all"
	}
}

// PriceSet is the merged result of one collection: at most one quote per
// source, ordered by price descending. An empty set means no source
// answered; it is not a zero price.
type PriceSet struct {
	Symbol      string          `json:"symbol"`
	Quotes      []sources.Quote `json:"quotes"`
	CollectedAt time.Time       `json:"collected_at"`
}

// Len returns the number of quotes.
func (p PriceSet) Len() int {
	return len(p.Quotes)
}

// Empty reports whether no source answered.
func (p PriceSet) Empty() bool {
	return len(p.Quotes) == 0
}

// ByRegion returns the subset of one region, keeping the order.
func (p PriceSet) ByRegion(r sources.Region) PriceSet {
	out := PriceSet{Symbol: p.Symbol, CollectedAt: p.CollectedAt}
	for _, q := range p.Quotes {
		if q.Region == r {
			out.Quotes = append(out.Quotes, q)
		}
	}
	return out
}

// BySource returns the quote of one source.
func (p PriceSet) BySource(name string) (sources.Quote, bool) {
	for _, q := range p.Quotes {
		if strings.EqualFold(q.Source, name) {
			return q, true
		}
	}
	return sources.Quote{}, false
}

// Count returns how many quotes come from region r.
func (p PriceSet) Count(r sources.Region) int {
	n := 0
	for _, q := range p.Quotes {
		if q.Region == r {
			n++
		}
	}
	return n
}

// Converted returns a copy where quotes priced in currency from are
// multiplied by rate and relabelled as currency to. The result is sorted by
// price descending again; equal prices keep their previous order.
func (p PriceSet) Converted(from, to string, rate decimal.Decimal) PriceSet {
	out := PriceSet{Symbol: p.Symbol, CollectedAt: p.CollectedAt}
	out.Quotes = make([]sources.Quote, len(p.Quotes))
	for i, q := range p.Quotes {
		if q.Currency == from {
			q.Price = q.Price.Mul(rate)
			q.High24h = scaleNull(q.High24h, rate)
			q.Low24h = scaleNull(q.Low24h, rate)
			q.Currency = to
		}
		out.Quotes[i] = q
	}
	sort.SliceStable(out.Quotes, func(i, j int) bool {
		return out.Quotes[i].Price.GreaterThan(out.Quotes[j].Price)
	})
	return out
}

func scaleNull(d decimal.NullDecimal, rate decimal.Decimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Mul(rate))
}
