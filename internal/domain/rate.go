/**
 * @description
 * This file defines the rate-resolution domain types: the quote returned by
 * the resolver and the conversion DTOs exposed over the API.
 */

package domain

import "math"

// Rate tiers describe which stage of the fallback pipeline produced a quote.
// The tier is used for logging and tests only; the transfer record keeps just
// the numeric rate.
const (
	RateTierLivePrimary = "live_primary"
	RateTierLiveBackup  = "live_backup"
	RateTierStatic      = "static"
	RateTierDefault     = "default"

	// RateTierIdentity marks the trivial same-currency quote, which terminates
	// resolution before any tier is consulted.
	RateTierIdentity = "identity"
)

// RateQuote is the outcome of resolving a currency pair.
type RateQuote struct {
	FromCurrency string  `json:"from_currency"`
	ToCurrency   string  `json:"to_currency"`
	Rate         float64 `json:"rate"`
	Tier         string  `json:"tier"`
}

// ConversionResult is the response body of the conversion endpoint.
type ConversionResult struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Rate   float64 `json:"rate"`
	Result float64 `json:"result"`
	Tier   string  `json:"tier"`
}

// Round4 rounds a monetary value to 4 decimal places, the precision used for
// rates and computed amounts throughout the engine.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
