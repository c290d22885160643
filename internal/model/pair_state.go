package model

// PairState is the oracle-relevant state read from a deployed pair.
type PairState struct {
	Address              string `json:"address"`
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	Reserve0             string `json:"reserve0"`
	Reserve1             string `json:"reserve1"`
	BlockTimestampLast   uint32 `json:"block_timestamp_last"`
	Price0CumulativeLast string `json:"price0_cumulative_last"`
	Price1CumulativeLast string `json:"price1_cumulative_last"`
	BlockNumber          uint64 `json:"block_number"`
	BlockTimestamp       uint64 `json:"block_timestamp"`
}
