package quote

import (
	"fmt"
	"math"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/money"
)

const (
	minTenureMonths = 1
	maxTenureMonths = 60
)

// MonthlyInstallment computes the fixed-rate amortized monthly payment for a
// principal over tenureMonths at annualRatePercent. A zero rate degenerates
// to straight division.
func MonthlyInstallment(principal, annualRatePercent float64, tenureMonths int) float64 {
	monthlyRate := annualRatePercent / 12 / 100
	if monthlyRate == 0 {
		return money.Round(principal / float64(tenureMonths))
	}
	factor := math.Pow(1+monthlyRate, float64(tenureMonths))
	return money.Round(principal * monthlyRate * factor / (factor - 1))
}

// validateFinanceTerms rejects amortization parameters outside the product's
// bounds.
func validateFinanceTerms(finalAmountUSD, downPaymentUSD float64, tenureMonths int) error {
	if tenureMonths < minTenureMonths || tenureMonths > maxTenureMonths {
		return apperrors.New(apperrors.CodeFinanceTenureOutOfRange,
			fmt.Sprintf("tenure must be between %d and %d months, got %d", minTenureMonths, maxTenureMonths, tenureMonths))
	}
	if downPaymentUSD < 0 {
		return apperrors.New(apperrors.CodeFinanceDownPaymentInvalid, "down payment must not be negative")
	}
	if downPaymentUSD > finalAmountUSD {
		return apperrors.New(apperrors.CodeFinanceDownPaymentInvalid,
			fmt.Sprintf("down payment %s exceeds quote total %s",
				money.FormatUSD(downPaymentUSD), money.FormatUSD(finalAmountUSD)))
	}
	return nil
}
