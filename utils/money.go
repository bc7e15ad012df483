package utils

import (
	"fmt"
	"strings"
)

// FormatCents renders minor units as "50.00 EUR".
func FormatCents(v int64, currency string) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}
