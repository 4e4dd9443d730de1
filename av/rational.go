package av

import (
	"fmt"
	"math/big"
)

// Rational is a time base or frame rate expressed as Num/Den.
type Rational struct {
	Num int64
	Den int64
}

var (
	TimeBase90k  = Rational{1, 90000}
	TimeBaseMsec = Rational{1, 1000}
)

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Float returns Num/Den, or 0 for an invalid rational.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Rescale converts v from time base from to time base to, rounding to nearest.
// NoPTS passes through unchanged.
func Rescale(v int64, from, to Rational) int64 {
	if v == NoPTS || from == to || !from.Valid() || !to.Valid() {
		return v
	}
	b := from.Num * to.Den
	c := from.Den * to.Num
	if c == 0 {
		return v
	}
	// Fast path while the product fits.
	if v < 1<<31 && v > -(1<<31) && b < 1<<31 {
		p := v * b
		if p >= 0 {
			return (p + c/2) / c
		}
		return -((-p + c/2) / c)
	}
	n := new(big.Int).Mul(big.NewInt(v), big.NewInt(b))
	half := big.NewInt(c / 2)
	if n.Sign() < 0 {
		n.Sub(n, half)
	} else {
		n.Add(n, half)
	}
	n.Quo(n, big.NewInt(c))
	return n.Int64()
}
