package orderbook

import "github.com/sawpanic/mdgateway/internal/model"

// EvalResult is a filter's verdict on one group during a view walk.
type EvalResult struct {
	Accept bool
	Open   bool
	Last   bool
}

// LevelProvider is the "SortBook" abstraction a view composes over: a
// source of per-level QuoteGroups for one (instrument, side). OrderBook
// satisfies this implicitly.
type LevelProvider interface {
	IterateQuoteGroups(cp model.CurrencyPair, isBid bool, quotePred func(*Quote) bool, action func(level int, group *QuoteGroup) bool)
}

// Walker is the composable shape every view layer (base or filtered)
// exposes: walk levels until the action or the filter says stop.
type Walker func(action func(level int, group *QuoteGroup) bool)

// BookView is the base, unfiltered view directly over a LevelProvider.
type BookView struct {
	Book  LevelProvider
	CP    model.CurrencyPair
	IsBid bool
}

func (v *BookView) Walk(action func(level int, group *QuoteGroup) bool) {
	v.Book.IterateQuoteGroups(v.CP, v.IsBid, nil, action)
}

// FilterView layers one Filter's evaluation over an underlying Walker.
type FilterView struct {
	underlying Walker
	filter     *Filter
}

func NewFilterView(underlying Walker, f *Filter) *FilterView {
	return &FilterView{underlying: underlying, filter: f}
}

func (fv *FilterView) Walk(action func(level int, group *QuoteGroup) bool) {
	switch fv.filter.Field {
	case FieldLevel:
		fv.underlying(func(level int, g *QuoteGroup) bool {
			res := fv.filter.evalLevel(level)
			cont := true
			if res.Accept {
				cont = action(level, g)
			}
			if res.Last {
				return false
			}
			return cont
		})

	case FieldLevelVolume:
		fv.underlying(func(level int, g *QuoteGroup) bool {
			agg := g.Aggregate(false)
			if !fv.filter.compareInt(agg.TotalVolume) {
				return true
			}
			return action(level, g)
		})

	case FieldAggregateVolume:
		var acc *QuoteGroup
		var accVolume int64
		level := 0
		fv.underlying(func(_ int, g *QuoteGroup) bool {
			if acc == nil {
				acc = newQuoteGroup(g.Price)
			}
			for _, q := range g.Quotes() {
				acc.add(q)
			}
			accVolume += g.Aggregate(false).TotalVolume

			res := fv.filter.evalAggregateVolume(accVolume)
			if res.Open {
				return true // still accumulating, not yet emitted
			}
			level++
			cont := action(level, acc)
			acc, accVolume = nil, 0
			return cont
		})

	default:
		fv.underlying(func(level int, g *QuoteGroup) bool {
			quotes := g.Quotes()
			dest := newQuoteGroup(g.Price)

			if fv.filter.Field == FieldPrice && allPricesEqual(quotes) {
				if fv.filter.compareInt(g.Aggregate(false).AvgPrice) {
					for _, q := range quotes {
						dest.add(q)
					}
				}
			} else {
				for _, q := range quotes {
					if fv.filter.evalQuote(q) {
						dest.add(q)
					}
				}
			}

			if len(dest.Quotes()) == 0 {
				return true
			}
			return action(level, dest)
		})
	}
}

// NewView composes a chain of filters over a LevelProvider, returning
// the resulting Walker.
func NewView(book LevelProvider, cp model.CurrencyPair, isBid bool, filters []*Filter) Walker {
	walk := (&BookView{Book: book, CP: cp, IsBid: isBid}).Walk
	for _, f := range filters {
		walk = NewFilterView(walk, f).Walk
	}
	return walk
}
