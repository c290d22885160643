package model

// Event names emitted by the pair engine.
const (
	EventMint     = "Mint"
	EventBurn     = "Burn"
	EventSwap     = "Swap"
	EventSync     = "Sync"
	EventTransfer = "Transfer"
)

// MintEventData is the Mint event payload. Shares is the amount granted to
// the recipient, excluding any locked minimum.
type MintEventData struct {
	Recipient string `json:"recipient"`
	AmountA   string `json:"amount_a"`
	AmountB   string `json:"amount_b"`
	Shares    string `json:"shares"`
}

// BurnEventData is the Burn event payload.
type BurnEventData struct {
	Recipient string `json:"recipient"`
	AmountA   string `json:"amount_a"`
	AmountB   string `json:"amount_b"`
	Shares    string `json:"shares"`
}

// SwapEventData is the Swap event payload.
type SwapEventData struct {
	Recipient  string `json:"recipient"`
	AmountAIn  string `json:"amount_a_in"`
	AmountBIn  string `json:"amount_b_in"`
	AmountAOut string `json:"amount_a_out"`
	AmountBOut string `json:"amount_b_out"`
}

// SyncEventData carries the reserves committed at a sync point.
type SyncEventData struct {
	ReserveA  string `json:"reserve_a"`
	ReserveB  string `json:"reserve_b"`
	Timestamp uint32 `json:"timestamp"`
}

// TransferEventData records a share movement between holders.
type TransferEventData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}
