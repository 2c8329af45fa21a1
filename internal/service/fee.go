package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

const (
	// MinimumAmountCents is the smallest chargeable amount.
	MinimumAmountCents = 100
	MaximumAmountCents = 99999999

	// PlatformFeeBasisPoints is the platform's share of every payment (2.5%).
	PlatformFeeBasisPoints = 250

	DefaultCurrency = "usd"
)

// supportedCurrencies are the two-decimal currencies connected accounts may charge in.
var supportedCurrencies = map[string]bool{
	"usd": true,
	"eur": true,
	"gbp": true,
	"cad": true,
	"aud": true,
	"nzd": true,
	"chf": true,
	"sek": true,
	"nok": true,
	"dkk": true,
	"sgd": true,
	"hkd": true,
}

// CalculatePlatformFee returns the platform fee for amountCents, rounded up
// to the next cent. It only depends on the amount.
func CalculatePlatformFee(amountCents int64) int64 {
	if amountCents <= 0 {
		return 0
	}
	return (amountCents*PlatformFeeBasisPoints + 9999) / 10000
}

// NormalizeCurrency lower-cases and validates a currency code. An omitted
// currency defaults to usd; an unknown one is rejected.
func NormalizeCurrency(input string) (string, error) {
	code := strings.ToLower(strings.TrimSpace(input))
	if code == "" {
		return DefaultCurrency, nil
	}
	if !supportedCurrencies[code] {
		return "", models.NewValidationError("currency", "unsupported currency "+input)
	}
	return code, nil
}

// AmountToCents converts a major-unit amount to cents.
func AmountToCents(amount *decimal.Decimal) (int64, error) {
	if amount == nil {
		return 0, models.NewValidationError("amount", "amount is required")
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, models.NewValidationError("amount", "amount must have at most two decimal places")
	}
	if cents.LessThan(decimal.NewFromInt(MinimumAmountCents)) {
		return 0, models.NewValidationError("amount", "amount must be at least 1.00")
	}
	if cents.GreaterThan(decimal.NewFromInt(MaximumAmountCents)) {
		return 0, models.NewValidationError("amount", "amount exceeds the maximum of 999999.99")
	}
	return cents.IntPart(), nil
}
