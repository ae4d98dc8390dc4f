package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Safe decimal to float64 conversion (may lose precision!)
func DecimalToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// ParseDecimal parses a provider price string. Providers format large
// toman values with thousands separators ("1,234,000"), which are stripped.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	return decimal.NewFromString(s)
}
