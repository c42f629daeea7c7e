package layout

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// The layout fixes decimal places per field family: monetary values carry 2,
// quantities 4, unit prices 10 and tax rates 4. StringFixed rounds half-up
// for the non-negative values transmitted here.

// Amount formats a monetary value with 2 decimal places.
func Amount(d decimal.Decimal) string { return d.StringFixed(2) }

// Quantity formats a commercial or tributable quantity with 4 decimal places.
func Quantity(d decimal.Decimal) string { return d.StringFixed(4) }

// UnitPrice formats a unit price with 10 decimal places.
func UnitPrice(d decimal.Decimal) string { return d.StringFixed(10) }

// Rate formats a tax rate with 4 decimal places.
func Rate(d decimal.Decimal) string { return d.StringFixed(4) }

// PadNumber left-pads a non-negative integer with zeros to the given width.
func PadNumber(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// EmissionTime formats dhEmi with the UTC offset the layout requires.
func EmissionTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}

// cleanText strips control characters, collapses internal whitespace and
// truncates to max runes. The schema rejects both control characters and
// over-long fields.
func cleanText(s string, max int) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.TrimSpace(s) {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	runes := []rune(out)
	if max > 0 && len(runes) > max {
		return string(runes[:max])
	}
	return out
}
