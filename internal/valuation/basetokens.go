package valuation

import "strings"

// baseToken is one entry of the fixed reference set usable to establish a
// fill's USD value directly.
type baseToken struct {
	Symbol string
}

// baseTokens is the fixed base-token set, keyed by lowercase mainnet address.
var baseTokens = map[string]baseToken{
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {Symbol: "WETH"},
	"0x6b175474e89094c44da98b954eedeac495271d0f": {Symbol: "DAI"},
	"0x89d24a6b4ccb1b6faa2625fe562bdd9a23260359": {Symbol: "SAI"},
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {Symbol: "USDC"},
	"0xdac17f958d2ee523a2206206994597c13d831ec7": {Symbol: "USDT"},
	"0x0000000000085d4780b73119b644ae5ecd22b376": {Symbol: "TUSD"},
	"0x8e870d67f660d95d5be530380d0ec0bd388289e1": {Symbol: "PAX"},
}

// BaseTokenSymbol returns the reference symbol for a base-token address.
func BaseTokenSymbol(address string) (string, bool) {
	t, ok := baseTokens[strings.ToLower(address)]
	return t.Symbol, ok
}

// IsBaseToken reports whether the address belongs to the fixed base-token set.
func IsBaseToken(address string) bool {
	_, ok := baseTokens[strings.ToLower(address)]
	return ok
}
