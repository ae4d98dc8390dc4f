package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/paaavkata/market-dashboard/services/price-api/pkg/models"
	"github.com/paaavkata/market-dashboard/shared/pkg/utils"
)

// ErrDerivationUnavailable means no usable local rate was found, so no
// cross price could be computed.
var ErrDerivationUnavailable = errors.New("derived prices unavailable")

const (
	RateSymbol = "USDT"
	// FallbackRatePair is quoted in rial; dividing by RialsPerToman gives toman.
	FallbackRatePair = "USDTIRT"
)

var (
	RialsPerToman = decimal.NewFromInt(10)
	defaultBand   = decimal.RequireFromString("0.02")
	one           = decimal.NewFromInt(1)
)

// TrackedPair describes a USDT-quoted market whose price is converted to
// the local currency.
type TrackedPair struct {
	Pair   string
	Symbol string
	Name   string
	// Band is the synthetic day range half-width as a fraction of price.
	Band decimal.Decimal
}

var TrackedPairs = []TrackedPair{
	{Pair: "BTCUSDT", Symbol: "BTC", Name: "Bitcoin", Band: defaultBand},
	{Pair: "ETHUSDT", Symbol: "ETH", Name: "Ethereum", Band: defaultBand},
	{Pair: "XRPUSDT", Symbol: "XRP", Name: "Ripple", Band: decimal.RequireFromString("0.03")},
	{Pair: "TRXUSDT", Symbol: "TRX", Name: "Tron", Band: decimal.RequireFromString("0.025")},
}

// ExtractLocalRate returns the sell price of the USDT entry when it parses
// to a positive number.
func ExtractLocalRate(items []models.PriceItem) (decimal.Decimal, bool) {
	for _, item := range items {
		if item.Symbol != RateSymbol {
			continue
		}

		rate, err := utils.ParseDecimal(item.Sell)
		if err != nil || !rate.IsPositive() {
			return decimal.Zero, false
		}
		return rate, true
	}

	return decimal.Zero, false
}

// FallbackLocalRate reads the USDT/rial pair from the snapshot and converts
// it to toman.
func FallbackLocalRate(snapshot map[string]models.OrderbookEntry) (decimal.Decimal, bool) {
	entry, ok := snapshot[FallbackRatePair]
	if !ok || !entry.LastTradePrice.IsPositive() {
		return decimal.Zero, false
	}
	return entry.LastTradePrice.Div(RialsPerToman), true
}

// DeriveCryptoPrices converts each tracked pair present in snapshot into the
// local currency. Missing pairs are left out. A non-positive rate yields an
// empty map. When includeRate is set the rate itself is added as USDT.
func DeriveCryptoPrices(snapshot map[string]models.OrderbookEntry, rate decimal.Decimal, includeRate bool) map[string]models.DerivedCryptoPrice {
	prices := make(map[string]models.DerivedCryptoPrice, len(TrackedPairs)+1)
	if !rate.IsPositive() {
		return prices
	}

	for _, tracked := range TrackedPairs {
		entry, ok := snapshot[tracked.Pair]
		if !ok || !entry.LastTradePrice.IsPositive() {
			continue
		}

		derived := newDerivedPrice(tracked.Symbol, tracked.Name, entry.LastTradePrice.Mul(rate), tracked.Band)
		if !entry.LastUpdate.IsZero() {
			derived.LastUpdate = models.FormatTime(entry.LastUpdate)
		}
		prices[tracked.Symbol] = derived
	}

	if includeRate {
		prices[RateSymbol] = newDerivedPrice(RateSymbol, "Tether", rate, defaultBand)
	}

	return prices
}

func newDerivedPrice(symbol, name string, price, band decimal.Decimal) models.DerivedCryptoPrice {
	return models.DerivedCryptoPrice{
		Symbol:  symbol,
		Name:    name,
		Price:   utils.DecimalToFloat(price),
		DayHigh: utils.DecimalToFloat(price.Mul(one.Add(band))),
		DayLow:  utils.DecimalToFloat(price.Mul(one.Sub(band))),
	}
}
