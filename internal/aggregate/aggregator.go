// Package aggregate rolls pool events up into fixed time windows.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"minDex/internal/model"
)

// Window is the activity of one pool over [WindowStart, WindowEnd).
// Reserves are those of the last Sync in the window, empty if none.
type Window struct {
	Pool        string `json:"pool"`
	WindowStart uint32 `json:"window_start"`
	WindowEnd   uint32 `json:"window_end"`
	SwapCount   uint64 `json:"swap_count"`
	MintCount   uint64 `json:"mint_count"`
	BurnCount   uint64 `json:"burn_count"`
	VolumeAIn   string `json:"volume_a_in"`
	VolumeBIn   string `json:"volume_b_in"`
	VolumeAOut  string `json:"volume_a_out"`
	VolumeBOut  string `json:"volume_b_out"`
	ReserveA    string `json:"reserve_a,omitempty"`
	ReserveB    string `json:"reserve_b,omitempty"`
	FirstSeq    uint64 `json:"first_sequence"`
	LastSeq     uint64 `json:"last_sequence"`
}

// Aggregator groups records into windows per pool. Records of a pool must
// arrive in commit order.
type Aggregator struct {
	windowSeconds uint32
	logger        *zap.Logger
	accumulators  map[string]*Accumulator
	closed        []Window
	failed        int
}

func NewAggregator(windowSeconds uint32, logger *zap.Logger) (*Aggregator, error) {
	if windowSeconds == 0 {
		return nil, fmt.Errorf("window seconds must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		windowSeconds: windowSeconds,
		logger:        logger,
		accumulators:  make(map[string]*Accumulator),
	}, nil
}

// Add folds one record into its window, closing the pool's previous window
// when the record starts a new one. Undecodable records are logged and
// skipped.
func (a *Aggregator) Add(record model.TypedEventRecord) {
	start := windowStart(record.Timestamp, a.windowSeconds)
	key := poolKey(record.Pool)

	acc := a.accumulators[key]
	if acc == nil || acc.WindowStart != start {
		if acc != nil {
			a.closed = append(a.closed, acc.Window())
		}
		acc = NewAccumulator(record, start, start+a.windowSeconds)
		a.accumulators[key] = acc
	}

	if err := acc.AddEvent(record); err != nil {
		a.failed++
		a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Pool), zap.String("event", record.EventName))
	}
}

// Flush closes every open window and returns all windows ordered by start
// time, then pool.
func (a *Aggregator) Flush() []Window {
	for _, acc := range a.accumulators {
		a.closed = append(a.closed, acc.Window())
	}
	a.accumulators = make(map[string]*Accumulator)

	out := a.closed
	a.closed = nil
	sort.Slice(out, func(i, j int) bool {
		if out[i].WindowStart != out[j].WindowStart {
			return out[i].WindowStart < out[j].WindowStart
		}
		return poolKey(out[i].Pool) < poolKey(out[j].Pool)
	})
	return out
}

// Failed reports how many records could not be aggregated.
func (a *Aggregator) Failed() int {
	return a.failed
}

// Summarize aggregates a full record set.
func Summarize(records []model.TypedEventRecord, windowSeconds uint32, logger *zap.Logger) ([]Window, error) {
	agg, err := NewAggregator(windowSeconds, logger)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		agg.Add(record)
	}
	return agg.Flush(), nil
}

func windowStart(ts uint32, windowSec uint32) uint32 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}
