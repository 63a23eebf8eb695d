package rates

import "strings"

// symbolAliases maps wrapped or renamed tokens to the symbol the price
// provider quotes them under.
var symbolAliases = map[string]string{
	"WETH": "ETH",
}

// NormalizeSymbol uppercases a token symbol and collapses known aliases,
// e.g. NormalizeSymbol("WETH") == "ETH".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if alias, ok := symbolAliases[s]; ok {
		return alias
	}
	return s
}
