// Package money provides USD amount helpers shared by quoting and document
// generation. Amounts are plain float64 dollars; every derived figure is
// rounded to cents before persistence or comparison.
package money

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ToleranceUSD is the maximum divergence allowed between a stored total and
// a total recomputed from its components.
const ToleranceUSD = 0.01

var printer = message.NewPrinter(language.AmericanEnglish)

// Round rounds an amount to whole cents.
func Round(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Equal reports whether two USD amounts agree within ToleranceUSD.
func Equal(a, b float64) bool {
	return math.Abs(a-b) <= ToleranceUSD+1e-9
}

// FormatUSD renders an amount for documents, e.g. "$12,340.50".
func FormatUSD(amount float64) string {
	return printer.Sprintf("$%v", number.Decimal(Round(amount),
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))
}
