package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"minDex/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	Pool        string
	WindowStart uint32
	WindowEnd   uint32
	SwapCount   uint64
	MintCount   uint64
	BurnCount   uint64
	VolumeAIn   *big.Int
	VolumeBIn   *big.Int
	VolumeAOut  *big.Int
	VolumeBOut  *big.Int
	ReserveA    string
	ReserveB    string
	FirstSeq    uint64
	LastSeq     uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint32) *Accumulator {
	return &Accumulator{
		Pool:        record.Pool,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeAIn:   big.NewInt(0),
		VolumeBIn:   big.NewInt(0),
		VolumeAOut:  big.NewInt(0),
		VolumeBOut:  big.NewInt(0),
		FirstSeq:    record.Sequence,
		LastSeq:     record.Sequence,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Sequence > a.LastSeq {
		a.LastSeq = record.Sequence
	}
	if record.Sequence < a.FirstSeq {
		a.FirstSeq = record.Sequence
	}

	switch record.EventName {
	case model.EventSwap:
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case model.EventSync:
		var sync model.SyncEventData
		if err := json.Unmarshal(record.Decoded, &sync); err != nil {
			return fmt.Errorf("decode sync: %w", err)
		}
		a.ReserveA, a.ReserveB = sync.ReserveA, sync.ReserveB
	case model.EventMint:
		a.MintCount++
	case model.EventBurn:
		a.BurnCount++
	}
	return nil
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	targets := []*big.Int{a.VolumeAIn, a.VolumeBIn, a.VolumeAOut, a.VolumeBOut}
	for i, value := range []string{swap.AmountAIn, swap.AmountBIn, swap.AmountAOut, swap.AmountBOut} {
		amount, err := parseBigInt(value)
		if err != nil {
			return err
		}
		targets[i].Add(targets[i], amount)
	}
	a.SwapCount++
	return nil
}

// Window freezes the accumulator into its reported form.
func (a *Accumulator) Window() Window {
	return Window{
		Pool:        a.Pool,
		WindowStart: a.WindowStart,
		WindowEnd:   a.WindowEnd,
		SwapCount:   a.SwapCount,
		MintCount:   a.MintCount,
		BurnCount:   a.BurnCount,
		VolumeAIn:   a.VolumeAIn.String(),
		VolumeBIn:   a.VolumeBIn.String(),
		VolumeAOut:  a.VolumeAOut.String(),
		VolumeBOut:  a.VolumeBOut.String(),
		ReserveA:    a.ReserveA,
		ReserveB:    a.ReserveB,
		FirstSeq:    a.FirstSeq,
		LastSeq:     a.LastSeq,
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
