package numbers

import (
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of decimals of both the native token and the reward token.
const TokenDecimals = 18

var (
	SecondsPerDay = big.NewInt(60 * 60 * 24)
	Ether         = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
)

// WeiToUnit converts a base-unit amount to token units without losing precision.
func WeiToUnit(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -TokenDecimals)
}

// FormatUnits renders a base-unit amount in token units with a fixed number of decimals,
// rounding half away from zero.
func FormatUnits(wei *big.Int, places int32) string {
	return WeiToUnit(wei).StringFixed(places)
}

// CeilDiv returns ceil(a / b) for non-negative a and positive b.
func CeilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// FormatSignificant renders an amount with up to six significant digits and no trailing
// zeros, the way balances appear in messages ("0.05", "2.5", "1234.57").
func FormatSignificant(d decimal.Decimal) string {
	f, _ := d.Float64()
	return strconv.FormatFloat(f, 'g', 6, 64)
}
