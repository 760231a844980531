// Package payment holds the money arithmetic, comment formatting, and
// payment-method registry shared by the card gateway and the refund action.
package payment

import (
	"strconv"
	"strings"
)

// ToMinorUnits converts a major-currency amount (euros) to the currency's
// minor unit (cents) by multiplying by 100 and truncating toward zero.
// 12.345 becomes 1234. Truncation rather than rounding is the documented
// contract: callers must supply amounts already quantized to the minor unit,
// and the admin backend does.
func ToMinorUnits(amount float64) int64 {
	return int64(amount * 100)
}

// currencySymbols maps ISO 4217 codes to their display symbol. Unlisted
// currencies fall back to the code itself.
var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"CHF": "CHF",
}

// FormatCurrency renders an amount the way the shop's admin backend displays
// money: two decimals, comma as the decimal separator, symbol suffixed after
// a space. FormatCurrency(10, "EUR") yields "10,00 €".
func FormatCurrency(amount float64, currency string) string {
	symbol, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		symbol = strings.ToUpper(currency)
	}

	formatted := strconv.FormatFloat(amount, 'f', 2, 64)
	formatted = strings.Replace(formatted, ".", ",", 1)
	return formatted + " " + symbol
}
