package aggregate

import (
	"encoding/json"
	"testing"

	"minDex/internal/model"
)

func record(t *testing.T, seq uint64, ts uint32, name string, payload interface{}) model.TypedEventRecord {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return model.TypedEventRecord{
		Pool:      "0x9000000000000000000000000000000000000009",
		Sequence:  seq,
		EventName: name,
		Timestamp: ts,
		Decoded:   data,
	}
}

func TestSummarizeWindows(t *testing.T) {
	records := []model.TypedEventRecord{
		record(t, 1, 100, model.EventSync, model.SyncEventData{ReserveA: "1000", ReserveB: "4000"}),
		record(t, 2, 100, model.EventMint, model.MintEventData{AmountA: "1000", AmountB: "4000"}),
		record(t, 3, 130, model.EventSync, model.SyncEventData{ReserveA: "2000", ReserveB: "2000"}),
		record(t, 4, 130, model.EventSwap, model.SwapEventData{AmountAIn: "1000", AmountBOut: "2000"}),
		record(t, 5, 190, model.EventSync, model.SyncEventData{ReserveA: "1000", ReserveB: "4000"}),
		record(t, 6, 190, model.EventSwap, model.SwapEventData{AmountBIn: "2000", AmountAOut: "1000"}),
	}

	windows, err := Summarize(records, 60, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}

	first := windows[0]
	if first.WindowStart != 60 || first.WindowEnd != 120 || first.MintCount != 1 || first.SwapCount != 0 {
		t.Fatalf("unexpected first window: %+v", first)
	}
	second := windows[1]
	if second.SwapCount != 1 || second.VolumeAIn != "1000" || second.VolumeBOut != "2000" || second.VolumeBIn != "0" {
		t.Fatalf("unexpected second window: %+v", second)
	}
	if second.ReserveA != "2000" || second.FirstSeq != 3 || second.LastSeq != 4 {
		t.Fatalf("unexpected second window reserves: %+v", second)
	}
	third := windows[2]
	if third.WindowStart != 180 || third.VolumeBIn != "2000" || third.VolumeAOut != "1000" {
		t.Fatalf("unexpected third window: %+v", third)
	}
}

func TestAggregatorSkipsBadRecords(t *testing.T) {
	agg, err := NewAggregator(60, nil)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	bad := record(t, 1, 10, model.EventSwap, model.SwapEventData{AmountAIn: "-5"})
	agg.Add(bad)
	agg.Add(model.TypedEventRecord{Pool: bad.Pool, Sequence: 2, EventName: model.EventSync, Timestamp: 20, Decoded: json.RawMessage(`"oops"`)})

	if agg.Failed() != 2 {
		t.Fatalf("expected 2 failures, got %d", agg.Failed())
	}
	windows := agg.Flush()
	if len(windows) != 1 || windows[0].SwapCount != 0 {
		t.Fatalf("unexpected windows: %+v", windows)
	}
}

func TestNewAggregatorRejectsZeroWindow(t *testing.T) {
	if _, err := NewAggregator(0, nil); err == nil {
		t.Fatalf("expected error")
	}
}
