package lending

import "math/big"

var (
	// CollateralScale is the denominator of LTVBps.
	CollateralScale = big.NewInt(10_000)
	// RateScale is the denominator of InterestRate.
	RateScale = big.NewInt(1_000_000)
)

// requiredCollateral returns the smallest lock satisfying
// amount * CollateralScale <= lock * ltv.
func requiredCollateral(amount *big.Int, ltvBps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || ltvBps == 0 {
		return big.NewInt(0)
	}
	return ceilDiv(new(big.Int).Mul(amount, CollateralScale), new(big.Int).SetUint64(ltvBps))
}

func interestFor(amount *big.Int, rate uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rate == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return out.Quo(out, RateScale)
}

// proRata returns floor(value * part / whole).
func proRata(value, part, whole *big.Int) *big.Int {
	if value == nil || part == nil || whole == nil || whole.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(value, part)
	return out.Quo(out, whole)
}

func ceilDiv(num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
