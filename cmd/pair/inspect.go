package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"minDex/internal/aggregate"
	"minDex/internal/config"
	"minDex/internal/dex"
	"minDex/internal/model"
	"minDex/internal/storage"
	"minDex/internal/uq112"
)

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Store.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolAddr, err := parseAddress("pool", cfg.PoolAddress)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if cfg.Events != "" {
		records, err := storage.ReadEvents(cfg.Events)
		if err != nil {
			return err
		}
		if err := printEvents(out, records, cfg.Limit, logger); err != nil {
			return err
		}
		if cfg.Window > 0 {
			if err := printWindows(out, records, cfg.Window, logger); err != nil {
				return err
			}
		}
	}

	stores, err := openBackends(ctx, cfg.Store, poolAddr)
	if err != nil {
		return err
	}
	defer stores.Close()
	if stores.state == nil {
		return nil
	}

	snap, ok, err := stores.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		fmt.Fprintln(out, "no snapshot stored")
		return nil
	}
	printSnapshot(out, snap)
	return nil
}

// printEvents prints per-event counts and the trailing limit events. Events
// carrying a log encoding are decoded from it so the two forms are checked
// against each other.
func printEvents(out io.Writer, records []model.TypedEventRecord, limit int, logger *zap.Logger) error {
	decoder, err := dex.NewPairDecoder()
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	mismatches := 0
	for _, rec := range records {
		counts[rec.EventName]++
		if rec.Raw == nil {
			continue
		}
		event, err := decoder.Decode(model.LogRecord{
			Address:   rec.Pool,
			LogIndex:  rec.Sequence,
			Topics:    rec.Raw.Topics,
			Data:      rec.Raw.Data,
			Timestamp: uint64(rec.Timestamp),
		})
		if err != nil {
			mismatches++
			logger.Warn("decode raw log failed", zap.Uint64("sequence", rec.Sequence), zap.Error(err))
			continue
		}
		if event.EventName != rec.EventName {
			mismatches++
			logger.Warn("raw log disagrees with event",
				zap.Uint64("sequence", rec.Sequence),
				zap.String("event", rec.EventName),
				zap.String("raw_event", event.EventName),
			)
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "events=%d raw_mismatches=%d\n", len(records), mismatches)
	for _, name := range names {
		fmt.Fprintf(out, "  %-8s %d\n", name, counts[name])
	}

	start := 0
	if limit >= 0 && len(records) > limit {
		start = len(records) - limit
	}
	for _, rec := range records[start:] {
		fmt.Fprintf(out, "#%d %s t=%d %s\n", rec.Sequence, rec.EventName, rec.Timestamp, compactJSON(rec.Decoded))
	}
	return nil
}

func printWindows(out io.Writer, records []model.TypedEventRecord, window time.Duration, logger *zap.Logger) error {
	seconds := uint32(window / time.Second)
	windows, err := aggregate.Summarize(records, seconds, logger)
	if err != nil {
		return err
	}
	for _, w := range windows {
		fmt.Fprintf(out, "window %d..%d swaps=%d mints=%d burns=%d in=%s/%s out=%s/%s reserves=%s/%s\n",
			w.WindowStart, w.WindowEnd, w.SwapCount, w.MintCount, w.BurnCount,
			w.VolumeAIn, w.VolumeBIn, w.VolumeAOut, w.VolumeBOut, w.ReserveA, w.ReserveB)
	}
	return nil
}

func printSnapshot(out io.Writer, snap model.PoolSnapshot) {
	fmt.Fprintf(out, "pool %s\n", snap.Address)
	if snap.AssetA == "" {
		fmt.Fprintln(out, "  not initialized")
		return
	}
	fmt.Fprintf(out, "  assets     %s / %s\n", snap.AssetA, snap.AssetB)
	fmt.Fprintf(out, "  reserves   %s / %s\n", snap.ReserveA, snap.ReserveB)
	fmt.Fprintf(out, "  last sync  %d\n", snap.LastSyncTimestamp)
	fmt.Fprintf(out, "  cumulative %s / %s\n", snap.PriceACumulative, snap.PriceBCumulative)
	fmt.Fprintf(out, "  shares     %s across %d holders\n", snap.TotalShares, len(snap.Shares))

	reserveA, errA := uint256.FromDecimal(snap.ReserveA)
	reserveB, errB := uint256.FromDecimal(snap.ReserveB)
	if errA != nil || errB != nil || reserveA.IsZero() || reserveB.IsZero() {
		return
	}
	if priceA, err := uq112.Ratio(reserveB, reserveA); err == nil {
		fmt.Fprintf(out, "  spot A     %s B\n", uq112.Format(priceA, 8))
	}
	if priceB, err := uq112.Ratio(reserveA, reserveB); err == nil {
		fmt.Fprintf(out, "  spot B     %s A\n", uq112.Format(priceB, 8))
	}
}

func compactJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(data)
}
