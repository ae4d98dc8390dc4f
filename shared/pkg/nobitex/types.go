package nobitex

import "encoding/json"

const StatusOK = "ok"

// OrderbookPair holds the fields of a single pair in the all-orderbooks
// response that this service uses. Nobitex sends lastTradePrice as a quoted
// string and lastUpdate as epoch millis; json.Number accepts both forms.
type OrderbookPair struct {
	LastUpdate     json.Number `json:"lastUpdate"`
	LastTradePrice json.Number `json:"lastTradePrice"`
}

// Orderbook is the decoded all-orderbooks response keyed by pair, e.g. "BTCUSDT".
type Orderbook struct {
	Status string
	Pairs  map[string]OrderbookPair
}
