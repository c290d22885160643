package dex

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"minDex/internal/model"
)

var (
	testPair  = common.HexToAddress("0x9000000000000000000000000000000000000009")
	testUser  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func typedEvent(seq uint64, name string, payload interface{}) model.TypedEvent {
	return model.TypedEvent{
		Pool:      testPair.Hex(),
		Sequence:  seq,
		EventName: name,
		Timestamp: 1_700_000_000,
		Decoded:   payload,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewEncoder(31337)
	require.NoError(t, err)
	dec, err := NewPairDecoder()
	require.NoError(t, err)

	cases := []struct {
		event model.TypedEvent
		want  interface{}
	}{
		{
			event: typedEvent(1, model.EventMint, model.MintEventData{Recipient: testUser.Hex(), AmountA: "1000000000000000000", AmountB: "4000000000000000000", Shares: "1999999999999999000"}),
			want:  model.MintEventData{Recipient: testUser.Hex(), AmountA: "1000000000000000000", AmountB: "4000000000000000000"},
		},
		{
			event: typedEvent(2, model.EventBurn, model.BurnEventData{Recipient: testUser.Hex(), AmountA: "500", AmountB: "1000", Shares: "700"}),
			want:  model.BurnEventData{Recipient: testUser.Hex(), AmountA: "500", AmountB: "1000"},
		},
		{
			event: typedEvent(3, model.EventSwap, model.SwapEventData{Recipient: testUser.Hex(), AmountAIn: "0", AmountBIn: "100", AmountAOut: "90", AmountBOut: "0"}),
			want:  model.SwapEventData{Recipient: testUser.Hex(), AmountAIn: "0", AmountBIn: "100", AmountAOut: "90", AmountBOut: "0"},
		},
		{
			event: typedEvent(4, model.EventSync, model.SyncEventData{ReserveA: "5192296858534827628530496329220095", ReserveB: "1", Timestamp: 1_700_000_000}),
			want:  model.SyncEventData{ReserveA: "5192296858534827628530496329220095", ReserveB: "1", Timestamp: 1_700_000_000},
		},
		{
			event: typedEvent(5, model.EventTransfer, model.TransferEventData{From: common.Address{}.Hex(), To: testUser.Hex(), Amount: "1000"}),
			want:  model.TransferEventData{From: common.Address{}.Hex(), To: testUser.Hex(), Amount: "1000"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.event.EventName, func(t *testing.T) {
			record, err := enc.Encode(tc.event)
			require.NoError(t, err)
			require.Equal(t, uint64(31337), record.ChainID)
			require.True(t, dec.CanDecode(record.Topics[0]))

			got, err := dec.Decode(record)
			require.NoError(t, err)
			require.Equal(t, tc.event.EventName, got.EventName)
			require.Equal(t, tc.event.Sequence, got.Sequence)
			require.Equal(t, tc.event.Pool, got.Pool)
			require.Equal(t, tc.want, got.Decoded)
		})
	}
}

func TestEncodeRejectsBadPayload(t *testing.T) {
	enc, err := NewEncoder(1)
	require.NoError(t, err)

	_, err = enc.Encode(typedEvent(1, "Collect", model.SyncEventData{}))
	require.Error(t, err)

	_, err = enc.Encode(typedEvent(1, model.EventSync, model.SyncEventData{ReserveA: "-5", ReserveB: "1"}))
	require.Error(t, err)

	_, err = enc.Encode(typedEvent(1, model.EventSync, map[string]string{"reserve_a": "1"}))
	require.Error(t, err)
}

func TestDecodeUnknownTopic(t *testing.T) {
	dec, err := NewPairDecoder()
	require.NoError(t, err)
	require.False(t, dec.CanDecode(""))
	require.False(t, dec.CanDecode(common.Hash{}.Hex()))

	_, err = dec.Decode(model.LogRecord{Topics: []string{common.Hash{}.Hex()}})
	require.Error(t, err)
	_, err = dec.Decode(model.LogRecord{})
	require.Error(t, err)
}

type recordingSink struct {
	events []model.TypedEvent
}

func (r *recordingSink) PutEvents(_ context.Context, events []model.TypedEvent) error {
	r.events = append(r.events, events...)
	return nil
}

func TestEncodingSinkAttachesRaw(t *testing.T) {
	enc, err := NewEncoder(1)
	require.NoError(t, err)
	next := &recordingSink{}
	sink := EncodingSink{Encoder: enc, Next: next}

	in := []model.TypedEvent{typedEvent(7, model.EventSync, model.SyncEventData{ReserveA: "10", ReserveB: "20", Timestamp: 1_700_000_000})}
	require.NoError(t, sink.PutEvents(context.Background(), in))
	require.Nil(t, in[0].Raw)
	require.Len(t, next.events, 1)
	require.NotNil(t, next.events[0].Raw)
	require.Len(t, next.events[0].Raw.Topics, 1)
}

// fakeCaller answers calls by packing canned outputs for the called method.
type fakeCaller struct {
	abis    map[common.Address]abi.ABI
	outputs map[string][]interface{}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, ok := f.abis[*msg.To]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", msg.To.Hex())
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	values, ok := f.outputs[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return method.Outputs.Pack(values...)
}

func TestFetchPairState(t *testing.T) {
	pairABI, err := PairABI()
	require.NoError(t, err)

	price0, _ := new(big.Int).SetString("5192296858534827628530496329220096000", 10)
	caller := &fakeCaller{
		abis: map[common.Address]abi.ABI{testPair: pairABI},
		outputs: map[string][]interface{}{
			"token0":               {testToken},
			"token1":               {testUser},
			"getReserves":          {big.NewInt(1000), big.NewInt(4000), uint32(1_700_000_123)},
			"price0CumulativeLast": {price0},
			"price1CumulativeLast": {big.NewInt(0)},
		},
	}

	state, err := FetchPairState(context.Background(), caller, testPair, big.NewInt(19_000_000))
	require.NoError(t, err)
	require.Equal(t, testToken.Hex(), state.Token0)
	require.Equal(t, testUser.Hex(), state.Token1)
	require.Equal(t, "1000", state.Reserve0)
	require.Equal(t, "4000", state.Reserve1)
	require.Equal(t, uint32(1_700_000_123), state.BlockTimestampLast)
	require.Equal(t, price0.String(), state.Price0CumulativeLast)
	require.Equal(t, "0", state.Price1CumulativeLast)
	require.Equal(t, uint64(19_000_000), state.BlockNumber)

	delete(caller.outputs, "getReserves")
	_, err = FetchPairState(context.Background(), caller, testPair, nil)
	require.Error(t, err)
}

func TestResolveTokenMetaCaches(t *testing.T) {
	erc20, err := erc20StringABI.get()
	require.NoError(t, err)
	caller := &fakeCaller{
		abis: map[common.Address]abi.ABI{testToken: erc20},
		outputs: map[string][]interface{}{
			"decimals": {uint8(6)},
			"symbol":   {"USDC"},
			"name":     {"USD Coin"},
		},
	}
	cache := NewTokenMetaCache()

	meta := ResolveTokenMeta(context.Background(), caller, testToken, cache, nil)
	require.Equal(t, uint8(6), meta.Decimals)
	require.Equal(t, "USDC", meta.Symbol)

	caller.outputs = nil
	again := ResolveTokenMeta(context.Background(), caller, testToken, cache, nil)
	require.Equal(t, meta, again)
}
