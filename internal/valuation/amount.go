package valuation

import (
	"fmt"
	"math/big"
)

// ethDecimals is the fixed scale for ETH-denominated protocol fees.
const ethDecimals = 18

// FormatAmount scales a raw on-chain integer amount (decimal string) by the
// token's decimals. Raw amounts routinely exceed int64, so the conversion
// goes through math/big.
func FormatAmount(raw string, decimals int) (float64, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0, fmt.Errorf("malformed raw amount %q", raw)
	}
	if n.Sign() < 0 {
		return 0, fmt.Errorf("negative raw amount %q", raw)
	}
	return scale(n, decimals), nil
}

// sumRawAmounts adds raw decimal-string amounts without losing precision.
func sumRawAmounts(raws []string) (*big.Int, error) {
	total := new(big.Int)
	for _, raw := range raws {
		n, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("malformed raw amount %q", raw)
		}
		total.Add(total, n)
	}
	return total, nil
}

func scale(n *big.Int, decimals int) float64 {
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out, _ := new(big.Float).Quo(
		new(big.Float).SetInt(n),
		new(big.Float).SetInt(divisor),
	).Float64()
	return out
}
