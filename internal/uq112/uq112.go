// Package uq112 implements the UQ112x112 fixed-point format used by the pair
// price oracle: 112 integer bits and 112 fractional bits packed in a 224-bit value.
package uq112

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// ReserveBits is the width every reserve must fit.
	ReserveBits = 112
	// FractionalBits is the number of fractional bits of an encoded price.
	FractionalBits = 112
	// CumulativeBits is the wrapping width of the pool's price accumulators.
	CumulativeBits = ReserveBits + FractionalBits
)

var (
	// MaxReserve is 2^112 - 1.
	MaxReserve = mask(ReserveBits)

	cumulativeMask = mask(CumulativeBits)
	q112           = new(uint256.Int).Lsh(uint256.NewInt(1), FractionalBits)
)

func mask(bits uint) *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), bits)
	return m.Sub(m, uint256.NewInt(1))
}

// FitsReserve reports whether v fits in ReserveBits.
func FitsReserve(v *uint256.Int) bool {
	return v.BitLen() <= ReserveBits
}

// Encode returns y as a UQ112x112 value. y must fit in ReserveBits.
func Encode(y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(y, FractionalBits)
}

// Ratio returns numerator/denominator encoded as UQ112x112, truncating.
func Ratio(numerator, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, fmt.Errorf("uq112 ratio: zero denominator")
	}
	if !FitsReserve(numerator) || !FitsReserve(denominator) {
		return nil, fmt.Errorf("uq112 ratio: operand exceeds %d bits", ReserveBits)
	}
	return new(uint256.Int).Div(Encode(numerator), denominator), nil
}

// Accumulate returns (acc + price*elapsed) mod 2^CumulativeBits.
func Accumulate(acc, price *uint256.Int, elapsed uint32) *uint256.Int {
	step := new(uint256.Int).Mul(price, uint256.NewInt(uint64(elapsed)))
	out := new(uint256.Int).Add(acc, step)
	return out.And(out, cumulativeMask)
}

// CumulativeDelta returns (newer - older) mod 2^bits. Accumulators sampled
// less than one overflow period apart yield the true integral this way.
func CumulativeDelta(newer, older *uint256.Int, bits uint) *uint256.Int {
	out := new(uint256.Int).Sub(newer, older)
	if bits >= 256 {
		return out
	}
	return out.And(out, mask(bits))
}

// Average divides a cumulative delta by the elapsed seconds it covers.
func Average(delta *uint256.Int, elapsed uint32) (*uint256.Int, error) {
	if elapsed == 0 {
		return nil, fmt.Errorf("uq112 average: zero elapsed time")
	}
	return new(uint256.Int).Div(delta, uint256.NewInt(uint64(elapsed))), nil
}

// Decode returns the integer part of a UQ112x112 value.
func Decode(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, FractionalBits)
}

// Format renders a UQ112x112 value as a decimal string truncated to
// precision fractional digits.
func Format(x *uint256.Int, precision int) string {
	whole := Decode(x).Dec()
	if precision <= 0 {
		return whole
	}
	frac := new(uint256.Int).Mod(x, q112).ToBig()
	frac.Mul(frac, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil))
	frac.Rsh(frac, FractionalBits)
	digits := frac.String()
	return whole + "." + strings.Repeat("0", precision-len(digits)) + digits
}
