package pricing

import (
	"errors"
	"math"
)

// ErrInvalidPrice is returned when a source price is missing or non-positive.
// It is fatal to the submission flow: no listing may be created without a
// valid price.
var ErrInvalidPrice = errors.New("invalid source price")

// Marketplace fee constants used by the breakeven formulas. USA listings pay
// a higher percentage fee but no regulatory surcharge.
const (
	usaFeeRate  = 0.129
	usaFlatFee  = 0.55
	intlFeeRate = 0.0948
	intlFlatFee = 0.36
	intlSurFee  = 0.12
)

// minimumMarkupFactor is the submission-time profit floor: a final sell price
// is never allowed below 110% of the source price.
const minimumMarkupFactor = 1.10

// Context carries the user configuration controlling price derivation.
type Context struct {
	Domain           Domain  `json:"domain"`
	MarkupPercentage float64 `json:"markup_percentage"`
	EndPriceAddition float64 `json:"end_price_addition"`
}

// Computed is the output of a full price derivation pass.
type Computed struct {
	SourcePrice    float64 `json:"source_price"`
	BreakevenPrice float64 `json:"breakeven_price"`
	SellPrice      float64 `json:"sell_price"`
	CurrencySymbol string  `json:"currency_symbol"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func validateSourcePrice(sourcePrice float64) error {
	if math.IsNaN(sourcePrice) || sourcePrice <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// ComputeBreakeven projects the minimum sell price needed to cover the source
// cost plus estimated marketplace fees. Any domain other than USA, including
// unrecognized ones, uses the international formula branch.
func ComputeBreakeven(sourcePrice float64, domain Domain) (float64, error) {
	if err := validateSourcePrice(sourcePrice); err != nil {
		return 0, err
	}
	if domain == DomainUSA {
		return round2(sourcePrice + sourcePrice*usaFeeRate + usaFlatFee), nil
	}
	return round2(sourcePrice + sourcePrice*intlFeeRate + intlFlatFee + intlSurFee), nil
}

// ComputeCompetitorBreakeven is the subtractive mirror of ComputeBreakeven:
// given a competitor's listed price, it infers what that competitor must have
// paid for the item, working backward through the same fee structure. It is a
// distinct operation from ComputeBreakeven (backward cost inference, not
// forward cost projection) and must stay one.
func ComputeCompetitorBreakeven(listedPrice float64, domain Domain) (float64, error) {
	if err := validateSourcePrice(listedPrice); err != nil {
		return 0, err
	}
	if domain == DomainUSA {
		return round2(listedPrice - listedPrice*usaFeeRate - usaFlatFee), nil
	}
	return round2(listedPrice - listedPrice*intlFeeRate - intlFlatFee - intlSurFee), nil
}

// ComputeSellPrice applies the user markup and flat end-price addition.
// Rounding happens once, before the flat addition; rounding afterwards would
// shift cent-level results for fractional additions.
func ComputeSellPrice(sourcePrice, markupPercentage, endPriceAddition float64) (float64, error) {
	if err := validateSourcePrice(sourcePrice); err != nil {
		return 0, err
	}
	return round2(sourcePrice+sourcePrice*markupPercentage/100) + endPriceAddition, nil
}

// EnforceMinimumMarkupFloor raises a sell price to 110% of the source price
// when it falls below that floor. Applied only on the submission path; the
// live preview shown to the user is advisory and carries no floor.
func EnforceMinimumMarkupFloor(sellPrice, sourcePrice float64) float64 {
	floor := sourcePrice * minimumMarkupFactor
	if sellPrice < floor {
		return floor
	}
	return sellPrice
}

// Preview derives advisory pricing for live display. No profit floor is
// applied here; the submission path may legitimately diverge upward.
func Preview(sourcePrice float64, ctx Context) (*Computed, error) {
	breakeven, err := ComputeBreakeven(sourcePrice, ctx.Domain)
	if err != nil {
		return nil, err
	}
	sell, err := ComputeSellPrice(sourcePrice, ctx.MarkupPercentage, ctx.EndPriceAddition)
	if err != nil {
		return nil, err
	}
	return &Computed{
		SourcePrice:    sourcePrice,
		BreakevenPrice: breakeven,
		SellPrice:      sell,
		CurrencySymbol: ResolveCurrencySymbol("", ctx.Domain),
	}, nil
}

// ForSubmission derives the authoritative pricing used when a listing is
// actually created: identical to Preview except the minimum markup floor is
// enforced on the sell price.
func ForSubmission(sourcePrice float64, ctx Context) (*Computed, error) {
	computed, err := Preview(sourcePrice, ctx)
	if err != nil {
		return nil, err
	}
	computed.SellPrice = EnforceMinimumMarkupFloor(computed.SellPrice, sourcePrice)
	return computed, nil
}
