// Package pricing holds the pure money helpers the cart consumes: exact
// integer-cent formatting and the shipping/tax calculator.
package pricing

import (
	"strconv"
	"strings"
)

// FormatPrice renders integer cents as US dollars ("$1,234.05"). It never goes
// through floating point.
func FormatPrice(cents int64) string {
	var b strings.Builder
	if cents < 0 {
		b.WriteByte('-')
		if cents == -cents {
			// math.MinInt64 has no positive counterpart.
			return "-$92,233,720,368,547,758.08"
		}
		cents = -cents
	}
	b.WriteByte('$')

	dollars := strconv.FormatInt(cents/100, 10)
	for i, r := range dollars {
		if i > 0 && (len(dollars)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	rem := cents % 100
	b.WriteByte('.')
	if rem < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(rem, 10))
	return b.String()
}

// FormatShipping renders a shipping charge, with zero shown as FREE.
func FormatShipping(cents int64) string {
	if cents == 0 {
		return "FREE"
	}
	return FormatPrice(cents)
}
