package sim

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"minDex/internal/model"
	"minDex/internal/storage"
)

const swapScript = `
# bootstrap a 1:4 pool and trade against it
{"op":"initialize"}
{"op":"fund","to":"alice","asset":"a","amount":"10e18"}
{"op":"fund","to":"alice","asset":"b","amount":"10e18"}
{"op":"fund","to":"bob","asset":"a","amount":"1e18"}
{"op":"deposit","from":"alice","amount_a":"1e18","amount_b":"4e18"}
{"op":"supply","to":"alice"}
{"op":"advance","seconds":60}
{"op":"deposit","from":"bob","amount_a":"1e18"}
{"op":"swap","to":"bob","amount_b":"2000000000000000001","expect_error":"invalid invariant"}
{"op":"swap","to":"bob","amount_b":"2e18"}
{"op":"transfer_shares","from":"alice","to":"pool","amount":"all"}
{"op":"withdraw","to":"alice"}
{"op":"swap","to":"bob","expect_error":"insufficient output amount"}
`

type recordingSink struct {
	events []model.TypedEvent
}

func (r *recordingSink) PutEvents(_ context.Context, events []model.TypedEvent) error {
	r.events = append(r.events, events...)
	return nil
}

func testConfig() RunConfig {
	return RunConfig{
		PoolAddress: common.HexToAddress("0x9000000000000000000000000000000000000009"),
		Factory:     common.HexToAddress("0x8000000000000000000000000000000000000008"),
		AssetA:      common.HexToAddress("0xa000000000000000000000000000000000000001"),
		AssetB:      common.HexToAddress("0xb000000000000000000000000000000000000002"),
		StartTime:   time.Unix(1_700_000_000, 0),
	}
}

func TestRunSwapScript(t *testing.T) {
	steps, err := ReadScript(strings.NewReader(swapScript))
	require.NoError(t, err)
	require.Len(t, steps, 13)

	sink := &recordingSink{}
	state := &storage.FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	runner, err := NewRunner(testConfig(), sink, state, nil, nil)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background(), steps)
	require.NoError(t, err)
	require.Equal(t, 13, summary.Steps)
	require.Equal(t, 2, summary.Rejected)
	require.Equal(t, 11, summary.Committed)

	snap := summary.Snapshot
	require.Equal(t, "1000", snap.ReserveA)
	require.Equal(t, "1000", snap.ReserveB)
	require.Equal(t, "1000", snap.TotalShares)
	require.Equal(t, uint32(1_700_000_060), snap.LastSyncTimestamp)
	require.Equal(t, "1246151246048358630847319119012823040", snap.PriceACumulative)
	require.Equal(t, "77884452878022414427957444938301440", snap.PriceBCumulative)

	alice, err := ResolveActor("alice")
	require.NoError(t, err)
	bob, err := ResolveActor("bob")
	require.NoError(t, err)
	require.Equal(t, "10999999999999999000", summary.Balances["A"][alice.Hex()])
	require.Equal(t, "7999999999999999000", summary.Balances["B"][alice.Hex()])
	require.Equal(t, "2000000000000000000", summary.Balances["B"][bob.Hex()])

	require.NotEmpty(t, sink.events)
	require.Equal(t, model.EventBurn, sink.events[len(sink.events)-1].EventName)

	saved, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap, saved)
}

const topUpScript = `
{"op":"fund","to":"carol","asset":"a","amount":"1e18"}
{"op":"fund","to":"carol","asset":"b","amount":"1e18"}
{"op":"deposit","from":"carol","amount_a":"1e18","amount_b":"1e18"}
{"op":"supply","to":"carol"}
`

// runOnLevelDB runs script against the LevelDB store at dir and returns the
// summary and the stored event log.
func runOnLevelDB(t *testing.T, dir, script string, resume bool) (Summary, []model.TypedEventRecord) {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()
	store, err := storage.OpenLevelDB(dir, cfg.PoolAddress)
	require.NoError(t, err)
	defer store.Close()

	steps, err := ReadScript(strings.NewReader(script))
	require.NoError(t, err)
	runner, err := NewRunner(cfg, store, store, nil, nil)
	require.NoError(t, err)

	resumed := false
	if resume {
		resumed, err = runner.Resume(ctx)
		require.NoError(t, err)
	}
	if !resumed {
		require.NoError(t, storage.MultiSink{store}.ResetEvents(ctx))
	}
	summary, err := runner.Run(ctx, steps)
	require.NoError(t, err)

	records, err := store.Events(ctx, 0)
	require.NoError(t, err)
	return summary, records
}

// requireLogMatchesSnapshot checks that the log is numbered 1..n and that
// its last Sync agrees with the snapshot.
func requireLogMatchesSnapshot(t *testing.T, records []model.TypedEventRecord, snap model.PoolSnapshot) {
	t.Helper()
	for i, rec := range records {
		require.Equal(t, uint64(i+1), rec.Sequence)
	}
	require.Equal(t, uint64(len(records)), snap.Sequence)

	var lastSync *model.SyncEventData
	for _, rec := range records {
		if rec.EventName != model.EventSync {
			continue
		}
		var sync model.SyncEventData
		require.NoError(t, json.Unmarshal(rec.Decoded, &sync))
		lastSync = &sync
	}
	require.NotNil(t, lastSync)
	require.Equal(t, snap.ReserveA, lastSync.ReserveA)
	require.Equal(t, snap.ReserveB, lastSync.ReserveB)
	require.Equal(t, snap.LastSyncTimestamp, lastSync.Timestamp)
}

func TestResumeContinuesLevelDBHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pair.db")

	first, firstLog := runOnLevelDB(t, dir, swapScript, false)
	requireLogMatchesSnapshot(t, firstLog, first.Snapshot)

	second, secondLog := runOnLevelDB(t, dir, topUpScript, true)
	require.Greater(t, len(secondLog), len(firstLog))
	for i, rec := range firstLog {
		require.Equal(t, rec, secondLog[i], "event %d of the first run changed", i+1)
	}
	requireLogMatchesSnapshot(t, secondLog, second.Snapshot)

	// the resumed pool picked up the first run's reserves and shares
	require.Equal(t, "1000000000000000001000", second.Snapshot.ReserveA)
	require.Equal(t, "1000000000000000001000", second.Snapshot.ReserveB)
	require.Equal(t, "1000000000000000001000", second.Snapshot.TotalShares)
	require.Equal(t, uint32(1_700_000_060), second.Snapshot.LastSyncTimestamp)
	require.Equal(t, first.Snapshot.PriceACumulative, second.Snapshot.PriceACumulative)
}

func TestFreshRunReplacesLevelDBHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pair.db")

	_, firstLog := runOnLevelDB(t, dir, swapScript, false)
	bootstrap := strings.Join(strings.Split(strings.TrimSpace(swapScript), "\n")[:7], "\n")
	second, secondLog := runOnLevelDB(t, dir, bootstrap, false)

	require.Less(t, len(secondLog), len(firstLog))
	require.Equal(t, model.EventMint, secondLog[len(secondLog)-1].EventName)
	requireLogMatchesSnapshot(t, secondLog, second.Snapshot)
}

func TestRunSavesSnapshotWhenStopped(t *testing.T) {
	steps, err := ReadScript(strings.NewReader(swapScript + `{"op":"resync","expect_error":"boom"}`))
	require.NoError(t, err)

	state := &storage.FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	sink := &recordingSink{}
	runner, err := NewRunner(testConfig(), sink, state, nil, nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), steps)
	require.ErrorContains(t, err, "step 14 (resync)")

	saved, ok, err := state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(len(sink.events)), saved.Sequence)
	require.Equal(t, "1000", saved.ReserveA)
}

func TestRunStopsOnUnexpectedOutcome(t *testing.T) {
	steps, err := ReadScript(strings.NewReader(`{"op":"initialize"}
{"op":"resync","expect_error":"not initialized"}`))
	require.NoError(t, err)

	runner, err := NewRunner(testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), steps)
	require.ErrorContains(t, err, "step 2 (resync)")
}

func TestRunFailFast(t *testing.T) {
	cfg := testConfig()
	cfg.FailFast = true
	steps, err := ReadScript(strings.NewReader(`{"op":"supply","to":"alice"}
{"op":"initialize"}`))
	require.NoError(t, err)

	runner, err := NewRunner(cfg, nil, nil, nil, nil)
	require.NoError(t, err)
	summary, err := runner.Run(context.Background(), steps)
	require.ErrorContains(t, err, "pool not initialized")
	require.Equal(t, 1, summary.Rejected)
}

func TestRunRejectsMalformedStep(t *testing.T) {
	runner, err := NewRunner(testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), []Step{{Op: OpFund, To: "alice", Asset: "c", Amount: "1"}})
	require.ErrorContains(t, err, "unknown asset")

	_, err = runner.Run(context.Background(), []Step{{Op: OpAdvance}})
	require.ErrorContains(t, err, "seconds")
}

func TestReadScriptErrors(t *testing.T) {
	_, err := ReadScript(strings.NewReader(`{"op":"mint"}`))
	require.ErrorContains(t, err, "line 1: unknown op")

	_, err = ReadScript(strings.NewReader("\n{not json"))
	require.ErrorContains(t, err, "line 2")
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1.5e18")
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", v.Dec())

	v, err = ParseAmount("")
	require.NoError(t, err)
	require.True(t, v.IsZero())

	for _, bad := range []string{"-1", "0.5", "abc", "1e78"} {
		_, err := ParseAmount(bad)
		require.Error(t, err, bad)
	}
}

func TestResolveActor(t *testing.T) {
	hex := "0x1111111111111111111111111111111111111111"
	addr, err := ResolveActor(hex)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(hex), addr)

	a1, err := ResolveActor("Alice")
	require.NoError(t, err)
	a2, err := ResolveActor("alice")
	require.NoError(t, err)
	require.Equal(t, a1, a2)
	require.NotEqual(t, common.Address{}, a1)

	_, err = ResolveActor("0x12")
	require.Error(t, err)
	_, err = ResolveActor(" ")
	require.Error(t, err)
}
