package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"minDex/internal/uq112"
)

// ReserveState holds the reserves and the price oracle. Every reserve change
// goes through Sync so the accumulators never miss one.
type ReserveState struct {
	ReserveA          *uint256.Int
	ReserveB          *uint256.Int
	LastSyncTimestamp uint32
	// PriceACumulative integrates the price of A in units of B over time and
	// wraps at 2^224. Only differences between samples are meaningful.
	PriceACumulative *uint256.Int
	PriceBCumulative *uint256.Int
}

func newReserveState() ReserveState {
	return ReserveState{
		ReserveA:         new(uint256.Int),
		ReserveB:         new(uint256.Int),
		PriceACumulative: new(uint256.Int),
		PriceBCumulative: new(uint256.Int),
	}
}

func (s ReserveState) clone() ReserveState {
	return ReserveState{
		ReserveA:          new(uint256.Int).Set(s.ReserveA),
		ReserveB:          new(uint256.Int).Set(s.ReserveB),
		LastSyncTimestamp: s.LastSyncTimestamp,
		PriceACumulative:  new(uint256.Int).Set(s.PriceACumulative),
		PriceBCumulative:  new(uint256.Int).Set(s.PriceBCumulative),
	}
}

// Sync advances the accumulators to now using the stored reserves and then
// replaces the reserves with the given balances. It fails without side
// effects when a balance does not fit in 112 bits.
func (s *ReserveState) Sync(balanceA, balanceB *uint256.Int, now uint32) error {
	if !uq112.FitsReserve(balanceA) || !uq112.FitsReserve(balanceB) {
		return fmt.Errorf("%w: balances %s/%s", ErrOverflow, balanceA.Dec(), balanceB.Dec())
	}
	s.PriceACumulative, s.PriceBCumulative = s.CumulativesAt(now)
	s.ReserveA = new(uint256.Int).Set(balanceA)
	s.ReserveB = new(uint256.Int).Set(balanceB)
	s.LastSyncTimestamp = now
	return nil
}

// CumulativesAt returns the accumulators as they would read if Sync ran at
// now with unchanged reserves.
func (s ReserveState) CumulativesAt(now uint32) (cumA, cumB *uint256.Int) {
	cumA = new(uint256.Int).Set(s.PriceACumulative)
	cumB = new(uint256.Int).Set(s.PriceBCumulative)

	elapsed := now - s.LastSyncTimestamp
	if elapsed == 0 || s.ReserveA.IsZero() || s.ReserveB.IsZero() {
		return cumA, cumB
	}
	priceA := new(uint256.Int).Div(uq112.Encode(s.ReserveB), s.ReserveA)
	priceB := new(uint256.Int).Div(uq112.Encode(s.ReserveA), s.ReserveB)
	return uq112.Accumulate(cumA, priceA, elapsed), uq112.Accumulate(cumB, priceB, elapsed)
}

// Product returns ReserveA * ReserveB. Both fit in 112 bits so it cannot overflow.
func (s ReserveState) Product() *uint256.Int {
	return new(uint256.Int).Mul(s.ReserveA, s.ReserveB)
}
