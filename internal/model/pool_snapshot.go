package model

// PoolSnapshot is the persisted layout of a pair. All amounts are decimal
// strings so the full 256-bit range survives JSON and SQL text columns.
type PoolSnapshot struct {
	Address           string            `json:"address"`
	AssetA            string            `json:"asset_a"`
	AssetB            string            `json:"asset_b"`
	ReserveA          string            `json:"reserve_a"`
	ReserveB          string            `json:"reserve_b"`
	LastSyncTimestamp uint32            `json:"last_sync_timestamp"`
	PriceACumulative  string            `json:"price_a_cumulative"`
	PriceBCumulative  string            `json:"price_b_cumulative"`
	TotalShares       string            `json:"total_shares"`
	Shares            map[string]string `json:"shares"`
	// Sequence is the sequence number of the last emitted event.
	Sequence uint64 `json:"sequence"`
}
