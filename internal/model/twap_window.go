package model

import "time"

// TWAPWindow is a time-weighted average price observed between two samples
// of a pair's cumulative prices.
type TWAPWindow struct {
	ChainID     uint64
	PairAddress string
	WindowStart time.Time
	WindowEnd   time.Time
	ElapsedSecs uint32
	// Price0 and Price1 are UQ112x112 encoded averages.
	Price0 string
	Price1 string
	// Price0Decimal and Price1Decimal are adjusted for token decimals.
	Price0Decimal string
	Price1Decimal string
}
