package quote

import (
	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/money"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// Components are the inputs the quote total derives from. Amounts are USD,
// percents are whole-number rates (10 means 10%).
type Components struct {
	CarrierQuoteUSD     float64
	WholesaleFeePercent float64
	BrokerFeeUSD        float64
	PremiumTaxPercent   float64
	PolicyFeeUSD        float64
}

// Totals are the amounts derived from Components. Every path that displays
// or transmits a quote uses these derived figures, never a cached copy.
type Totals struct {
	WholesaleFeeAmountUSD float64
	PremiumTaxAmountUSD   float64
	FinalAmountUSD        float64
}

// Derive computes the wholesale fee, premium tax, and final amount from the
// components, rounding each figure to cents.
func (c Components) Derive() Totals {
	wholesale := money.Round(c.CarrierQuoteUSD * c.WholesaleFeePercent / 100)
	tax := money.Round(c.CarrierQuoteUSD * c.PremiumTaxPercent / 100)
	final := money.Round(c.CarrierQuoteUSD + wholesale + c.BrokerFeeUSD + tax + c.PolicyFeeUSD)
	return Totals{
		WholesaleFeeAmountUSD: wholesale,
		PremiumTaxAmountUSD:   tax,
		FinalAmountUSD:        final,
	}
}

// componentsOf extracts the derivation inputs from a stored quote.
func componentsOf(record storage.QuoteRecord) Components {
	return Components{
		CarrierQuoteUSD:     record.CarrierQuoteUSD,
		WholesaleFeePercent: record.WholesaleFeePercent,
		BrokerFeeUSD:        record.BrokerFeeUSD,
		PremiumTaxPercent:   record.PremiumTaxPercent,
		PolicyFeeUSD:        record.PolicyFeeUSD,
	}
}

// VerifyStoredTotal recomputes the total from the quote's components and
// rejects the record when the stored figure has drifted beyond tolerance.
func VerifyStoredTotal(record storage.QuoteRecord) (Totals, error) {
	totals := componentsOf(record).Derive()
	if !money.Equal(totals.FinalAmountUSD, record.FinalAmountUSD) {
		return Totals{}, apperrors.WithMetadata(apperrors.CodeQuoteTotalDrift,
			"stored quote total diverges from its components",
			map[string]string{
				"quote_id": record.ID,
				"stored":   money.FormatUSD(record.FinalAmountUSD),
				"derived":  money.FormatUSD(totals.FinalAmountUSD),
			})
	}
	return totals, nil
}
