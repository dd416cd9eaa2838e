package domain

import (
	"fmt"
	"strings"
)

type Tier string

const (
	// One-time lifetime tiers.
	TierOne Tier = "tier_1"
	TierTwo Tier = "tier_2"

	// Monthly tiers. TierMonthly picks its currency from the buyer's country.
	TierMonthly    Tier = "monthly"
	TierMonthlyINR Tier = "monthly_inr"
	TierMonthlyUSD Tier = "monthly_usd"
	TierMonthlyGBP Tier = "monthly_gbp"
	TierMonthlyEUR Tier = "monthly_eur"
)

const (
	CurrencyINR = "INR"
	CurrencyUSD = "USD"
	CurrencyGBP = "GBP"
	CurrencyEUR = "EUR"
)

// Price is an amount in the currency's minor unit.
type Price struct {
	Amount   int64
	Currency string
}

// Display renders the price in major units, e.g. "49.00 USD".
func (p Price) Display() string {
	return fmt.Sprintf("%d.%02d %s", p.Amount/100, p.Amount%100, p.Currency)
}

var oneTimePrices = map[Tier]map[string]int64{
	TierOne: {CurrencyINR: 399900, CurrencyUSD: 4900, CurrencyGBP: 3900, CurrencyEUR: 4500},
	TierTwo: {CurrencyINR: 799900, CurrencyUSD: 9900, CurrencyGBP: 7900, CurrencyEUR: 8900},
}

var monthlyPrices = map[string]int64{
	CurrencyINR: 49900,
	CurrencyUSD: 999,
	CurrencyGBP: 799,
	CurrencyEUR: 899,
}

var monthlyTierCurrency = map[Tier]string{
	TierMonthlyINR: CurrencyINR,
	TierMonthlyUSD: CurrencyUSD,
	TierMonthlyGBP: CurrencyGBP,
	TierMonthlyEUR: CurrencyEUR,
}

var euCountries = map[string]bool{
	"AT": true, "BE": true, "CY": true, "DE": true, "EE": true, "ES": true,
	"FI": true, "FR": true, "GR": true, "HR": true, "IE": true, "IT": true,
	"LT": true, "LU": true, "LV": true, "MT": true, "NL": true, "PT": true,
	"SI": true, "SK": true,
}

// CurrencyForCountry maps an ISO 3166 alpha-2 country code to the currency it
// is billed in. Unknown or empty countries pay in USD.
func CurrencyForCountry(country string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	switch {
	case c == "IN":
		return CurrencyINR
	case c == "GB" || c == "UK":
		return CurrencyGBP
	case euCountries[c]:
		return CurrencyEUR
	default:
		return CurrencyUSD
	}
}

func (t Tier) IsOneTime() bool {
	_, ok := oneTimePrices[t]
	return ok
}

func (t Tier) IsMonthly() bool {
	if t == TierMonthly {
		return true
	}
	_, ok := monthlyTierCurrency[t]
	return ok
}

// ResolveOneTime returns the price of a one-time tier for a buyer in country.
func ResolveOneTime(t Tier, country string) (Price, bool) {
	byCurrency, ok := oneTimePrices[t]
	if !ok {
		return Price{}, false
	}
	cur := CurrencyForCountry(country)
	return Price{Amount: byCurrency[cur], Currency: cur}, true
}

// ResolveMonthly returns the monthly price for a subscription tier. Explicit
// currency tiers ignore country.
func ResolveMonthly(t Tier, country string) (Price, bool) {
	cur, ok := monthlyTierCurrency[t]
	if !ok {
		if t != TierMonthly {
			return Price{}, false
		}
		cur = CurrencyForCountry(country)
	}
	return Price{Amount: monthlyPrices[cur], Currency: cur}, true
}

// BadgeFor maps a one-time tier to its wall badge. The lower tier is gold.
func BadgeFor(t Tier) Badge {
	switch t {
	case TierOne:
		return BadgeGold
	case TierTwo:
		return BadgeSilver
	default:
		return ""
	}
}
