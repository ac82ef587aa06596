package sizing

import "math"

// Quantities holds the derived order sizes for one trading cycle.
type Quantities struct {
	// Contracts is the whole number of coin-margined futures contracts.
	Contracts int64
	// CoinEquivalent is the coin exposure those contracts represent.
	CoinEquivalent float64
	// FuturesFee is the futures fee cost carried in coin terms.
	FuturesFee float64
	// SpotQuantity is the quantity for the spot leg: grossed up to cover
	// fees when opening, net of fees when closing.
	SpotQuantity float64
}

// Open converts a notional target into order quantities for the entry
// direction. Fractional contract notional is truncated, never rounded.
func Open(amount, multiplier, futuresBid, spotFeeRate, futuresFeeRate float64) Quantities {
	contracts := int64(math.Floor(amount / multiplier))
	coinEq := float64(contracts) * multiplier / futuresBid
	futFee := coinEq * futuresFeeRate
	return Quantities{
		Contracts:      contracts,
		CoinEquivalent: coinEq,
		FuturesFee:     futFee,
		SpotQuantity:   coinEq/(1-spotFeeRate) + futFee,
	}
}

// Close converts the target into quantities for the unwind direction. The
// contract count scales with the closing reference price so that the
// position matches the coin-denominated exposure that was opened, not a
// fixed notional.
func Close(amount, multiplier, futuresPrice, futuresFeeRate float64) Quantities {
	contracts := int64(math.Floor(futuresPrice * amount / multiplier))
	coinEq := float64(contracts) * multiplier / futuresPrice
	futFee := coinEq * futuresFeeRate
	return Quantities{
		Contracts:      contracts,
		CoinEquivalent: coinEq,
		FuturesFee:     futFee,
		SpotQuantity:   coinEq - futFee,
	}
}

// RoundPrice rounds a limit price to the given number of decimal places.
func RoundPrice(price float64, precision int) float64 {
	if precision <= 0 {
		return math.Round(price)
	}
	factor := math.Pow10(precision)
	return math.Round(price*factor) / factor
}
