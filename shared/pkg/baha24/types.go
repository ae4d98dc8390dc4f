package baha24

// PriceRecord is one row of the bulk price list as the provider returns it.
type PriceRecord struct {
	Title      string `json:"title"`
	Symbol     string `json:"symbol"`
	Sell       string `json:"sell"`
	LastUpdate string `json:"last_update"`
}
