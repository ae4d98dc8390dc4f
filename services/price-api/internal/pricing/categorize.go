// Package pricing classifies bulk price records and derives local-currency
// crypto prices from USDT-quoted orderbook trades.
package pricing

import (
	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
)

type Category int

const (
	CategoryCurrency Category = iota
	CategoryCrypto
	CategoryGold
)

func (c Category) String() string {
	switch c {
	case CategoryCrypto:
		return "crypto"
	case CategoryGold:
		return "gold"
	default:
		return "currency"
	}
}

// Symbol sets are matched exactly; provider symbols are already upper case.
var (
	CryptoSymbols = newSymbolSet(
		"BITCOIN", "ETH", "USDT", "BNB", "XRP", "SOL", "ADA", "DOGE", "TRX", "LTC",
		"BCH", "LINK", "DOT", "AVAX", "SHIB", "ATOM", "UNI", "XLM", "VET", "FIL",
		"EOS", "DASH", "XMR", "TON", "MATIC",
	)
	GoldSymbols = newSymbolSet(
		"GOL18", "MITHQAL", "EMAMI1", "AZADI1", "AZADI1_2", "AZADI1_4", "AZADI1G",
		"OUNCE", "XAGUSD",
	)
	// KnownCurrencySymbols lists the currency codes the dashboard expects.
	// Anything outside all three sets still lands in currencies; the set
	// only lets callers report the gap.
	KnownCurrencySymbols = newSymbolSet(
		"USD", "EUR", "GBP", "AED", "TRY", "CNY", "JPY", "CAD", "AUD", "CHF",
		"IQD", "SAR", "QAR", "KWD", "OMR", "BHD", "AFN", "RUB", "INR", "SEK",
		"NOK", "DKK", "HKD", "SGD", "MYR", "THB", "AMD", "AZN", "GEL", "PKR",
	)
)

type symbolSet map[string]struct{}

func newSymbolSet(symbols ...string) symbolSet {
	set := make(symbolSet, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

func (s symbolSet) contains(symbol string) bool {
	_, ok := s[symbol]
	return ok
}

func Classify(symbol string) Category {
	switch {
	case CryptoSymbols.contains(symbol):
		return CategoryCrypto
	case GoldSymbols.contains(symbol):
		return CategoryGold
	default:
		return CategoryCurrency
	}
}

// IsKnownSymbol reports whether symbol is in any of the configured sets.
func IsKnownSymbol(symbol string) bool {
	return CryptoSymbols.contains(symbol) || GoldSymbols.contains(symbol) || KnownCurrencySymbols.contains(symbol)
}

// Categorize partitions items into crypto, gold and currencies, keeping the
// input order inside each bucket. Unrecognized symbols go to currencies.
func Categorize(items []models.PriceItem) models.CategorizedPrices {
	result := models.CategorizedPrices{
		Crypto:     []models.PriceItem{},
		Gold:       []models.PriceItem{},
		Currencies: []models.PriceItem{},
	}

	for _, item := range items {
		switch Classify(item.Symbol) {
		case CategoryCrypto:
			result.Crypto = append(result.Crypto, item)
		case CategoryGold:
			result.Gold = append(result.Gold, item)
		default:
			result.Currencies = append(result.Currencies, item)
		}
	}

	return result
}

// UnknownSymbols returns the symbols in items that matched no set, in input order.
func UnknownSymbols(items []models.PriceItem) []string {
	var unknown []string
	for _, item := range items {
		if !IsKnownSymbol(item.Symbol) {
			unknown = append(unknown, item.Symbol)
		}
	}
	return unknown
}
