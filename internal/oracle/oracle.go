// Package oracle derives time-weighted average prices from cumulative price
// observations, either of an in-process pool or of a deployed pair.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"minDex/internal/model"
	"minDex/internal/pool"
	"minDex/internal/uq112"
)

// PairCumulativeBits is the accumulator width of deployed pairs, which wrap at
// the full word.
const PairCumulativeBits = 256

var ErrZeroElapsed = errors.New("observations share a timestamp")

// Observation is a cumulative price pair read at Timestamp.
type Observation struct {
	Timestamp        uint32
	PriceACumulative *uint256.Int
	PriceBCumulative *uint256.Int
}

// Average is the mean price over a window, UQ112x112 encoded.
type Average struct {
	Elapsed uint32
	PriceA  *uint256.Int
	PriceB  *uint256.Int
}

// ObservePool reads the cumulative prices a pool would report at the given
// instant, without writing to it.
func ObservePool(p *pool.Pool, at time.Time) Observation {
	cumA, cumB, ts := p.CurrentCumulatives(at)
	return Observation{Timestamp: ts, PriceACumulative: cumA, PriceBCumulative: cumB}
}

// ObservePair extends the last stored cumulatives of a deployed pair to
// blockTimestamp using its current reserves.
func ObservePair(state model.PairState, blockTimestamp uint64) (Observation, error) {
	values := make([]*uint256.Int, 4)
	for i, raw := range []string{state.Reserve0, state.Reserve1, state.Price0CumulativeLast, state.Price1CumulativeLast} {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return Observation{}, fmt.Errorf("observe pair %s: parse %q: %w", state.Address, raw, err)
		}
		values[i] = v
	}
	reserve0, reserve1, cum0, cum1 := values[0], values[1], values[2], values[3]

	now := uint32(blockTimestamp)
	obs := Observation{Timestamp: now, PriceACumulative: cum0, PriceBCumulative: cum1}
	elapsed := now - state.BlockTimestampLast
	if elapsed == 0 || reserve0.IsZero() || reserve1.IsZero() {
		return obs, nil
	}

	price0, err := uq112.Ratio(reserve1, reserve0)
	if err != nil {
		return Observation{}, fmt.Errorf("observe pair %s: %w", state.Address, err)
	}
	price1, err := uq112.Ratio(reserve0, reserve1)
	if err != nil {
		return Observation{}, fmt.Errorf("observe pair %s: %w", state.Address, err)
	}
	span := uint256.NewInt(uint64(elapsed))
	obs.PriceACumulative = new(uint256.Int).Add(cum0, new(uint256.Int).Mul(price0, span))
	obs.PriceBCumulative = new(uint256.Int).Add(cum1, new(uint256.Int).Mul(price1, span))
	return obs, nil
}

// Consult averages the prices between two observations. bits is the
// accumulator width used for wrap-around subtraction.
func Consult(older, newer Observation, bits uint) (Average, error) {
	elapsed := newer.Timestamp - older.Timestamp
	if elapsed == 0 {
		return Average{}, ErrZeroElapsed
	}
	priceA, err := uq112.Average(uq112.CumulativeDelta(newer.PriceACumulative, older.PriceACumulative, bits), elapsed)
	if err != nil {
		return Average{}, err
	}
	priceB, err := uq112.Average(uq112.CumulativeDelta(newer.PriceBCumulative, older.PriceBCumulative, bits), elapsed)
	if err != nil {
		return Average{}, err
	}
	return Average{Elapsed: elapsed, PriceA: priceA, PriceB: priceB}, nil
}

// DecimalPrice renders a UQ112x112 price of base in quote units, scaled by
// the tokens' decimals.
func DecimalPrice(price *uint256.Int, baseDecimals, quoteDecimals uint8, precision int) string {
	q := new(big.Int).Lsh(big.NewInt(1), uq112.FractionalBits)
	rat := new(big.Rat).SetFrac(price.ToBig(), q)
	shift := int64(baseDecimals) - int64(quoteDecimals)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(abs(shift)), nil)
	if shift >= 0 {
		rat.Mul(rat, new(big.Rat).SetInt(scale))
	} else {
		rat.Quo(rat, new(big.Rat).SetInt(scale))
	}
	return rat.FloatString(precision)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
