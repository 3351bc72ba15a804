package core

// Symbol returns the display symbol for an ISO currency code. Unknown
// codes fall back to the code itself.
func Symbol(currency string) string {
	switch currency {
	case "RUB":
		return "₽"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	default:
		return currency
	}
}

// Currencies lists the currency codes the account can be switched to.
func Currencies() []string {
	return []string{"RUB", "USD", "EUR"}
}
