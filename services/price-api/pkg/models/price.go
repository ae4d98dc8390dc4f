package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TimeFormat is the layout used for every lastUpdated field served to clients.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

type PriceItem struct {
	Title      string `json:"title"`
	Symbol     string `json:"symbol"`
	Sell       string `json:"sell"`
	LastUpdate string `json:"last_update"`
}

type CategorizedPrices struct {
	Crypto     []PriceItem `json:"crypto"`
	Gold       []PriceItem `json:"gold"`
	Currencies []PriceItem `json:"currencies"`
}

// Len returns the total number of items across all buckets.
func (c CategorizedPrices) Len() int {
	return len(c.Crypto) + len(c.Gold) + len(c.Currencies)
}

// Flatten returns the buckets concatenated in crypto, gold, currencies order.
func (c CategorizedPrices) Flatten() []PriceItem {
	items := make([]PriceItem, 0, c.Len())
	items = append(items, c.Crypto...)
	items = append(items, c.Gold...)
	items = append(items, c.Currencies...)
	return items
}

// OrderbookEntry is the part of an upstream orderbook pair used for derivation.
type OrderbookEntry struct {
	LastTradePrice decimal.Decimal
	LastUpdate     time.Time
}

// DerivedCryptoPrice is a local-currency price computed from a USDT quote.
// DayHigh and DayLow are synthetic bands around Price, not market extremes.
type DerivedCryptoPrice struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	DayHigh    float64 `json:"dayHigh"`
	DayLow     float64 `json:"dayLow"`
	LastUpdate string  `json:"lastUpdate,omitempty"`
}

type PricesResponse struct {
	CategorizedPrices
	LastUpdated string `json:"lastUpdated"`
}

type NobitexResponse struct {
	Status      string                        `json:"status"`
	Prices      map[string]DerivedCryptoPrice `json:"prices"`
	LastUpdated string                        `json:"lastUpdated"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// StreamMessage is pushed to websocket subscribers after each refresh.
type StreamMessage struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	LastUpdated string          `json:"lastUpdated"`
}

const (
	StreamTypePrices  = "prices"
	StreamTypeNobitex = "nobitex"
)

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
