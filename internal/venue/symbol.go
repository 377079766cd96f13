package venue

import (
	"strings"

	"github.com/sawpanic/mdgateway/internal/model"
)

// supportedPairs is the closed set of instruments the separator-less
// (Binance) translator resolves against; a symbol that doesn't match
// one of these returns an InvalidArgument rather than inventing a pair.
// The hyphenated (Coinbase/OKX) form is split on '-' instead and
// accepts any pair of registered currencies.
var supportedPairs = []model.CurrencyPair{
	model.NewCurrencyPair(model.BTC, model.USD),
	model.NewCurrencyPair(model.BTC, model.USDT),
	model.NewCurrencyPair(model.BTC, model.USDC),
	model.NewCurrencyPair(model.ETH, model.USD),
	model.NewCurrencyPair(model.ETH, model.USDT),
	model.NewCurrencyPair(model.ETH, model.USDC),
	model.NewCurrencyPair(model.SOL, model.USD),
	model.NewCurrencyPair(model.SOL, model.USDT),
	model.NewCurrencyPair(model.XRP, model.USD),
	model.NewCurrencyPair(model.XRP, model.USDT),
	model.NewCurrencyPair(model.ETH, model.BTC),
	model.NewCurrencyPair(model.SOL, model.BTC),
}

// concatSymbol formats a pair the way Binance does: "BTCUSDT".
func concatSymbol(cp model.CurrencyPair) string {
	return string(cp.Base) + string(cp.Quote)
}

// hyphenSymbol formats a pair the way Coinbase/OKX do: "BTC-USDT".
func hyphenSymbol(cp model.CurrencyPair) string {
	return string(cp.Base) + "-" + string(cp.Quote)
}

// fromConcatSymbol reverses concatSymbol by matching supportedPairs,
// since the wire form carries no separator to split on.
func fromConcatSymbol(symbol string) (model.CurrencyPair, bool) {
	upper := strings.ToUpper(symbol)
	for _, cp := range supportedPairs {
		if concatSymbol(cp) == upper {
			return cp, true
		}
	}
	return model.CurrencyPair{}, false
}

func fromHyphenSymbol(symbol string) (model.CurrencyPair, bool) {
	upper := strings.ToUpper(symbol)
	idx := strings.IndexByte(upper, '-')
	if idx < 0 {
		return model.CurrencyPair{}, false
	}
	cp := model.NewCurrencyPair(model.Currency(upper[:idx]), model.Currency(upper[idx+1:]))
	if !cp.Valid() {
		return model.CurrencyPair{}, false
	}
	return cp, true
}
