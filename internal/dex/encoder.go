package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"minDex/internal/model"
	"minDex/internal/storage"
)

// Encoder renders pool events as logs of the pair contract. The engine does
// not track callers, so sender topics carry the recipient.
type Encoder struct {
	abi     abi.ABI
	chainID uint64
}

func NewEncoder(chainID uint64) (*Encoder, error) {
	parsed, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	return &Encoder{abi: parsed, chainID: chainID}, nil
}

// Encode converts a typed event into a log record.
func (e *Encoder) Encode(event model.TypedEvent) (model.LogRecord, error) {
	abiEvent, ok := e.abi.Events[event.EventName]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unknown event %q", event.EventName)
	}

	var (
		indexed []common.Address
		fields  []string
		names   []string
	)
	switch payload := event.Decoded.(type) {
	case model.MintEventData:
		indexed = []common.Address{common.HexToAddress(payload.Recipient)}
		names = []string{"amount0", "amount1"}
		fields = []string{payload.AmountA, payload.AmountB}
	case model.BurnEventData:
		recipient := common.HexToAddress(payload.Recipient)
		indexed = []common.Address{recipient, recipient}
		names = []string{"amount0", "amount1"}
		fields = []string{payload.AmountA, payload.AmountB}
	case model.SwapEventData:
		recipient := common.HexToAddress(payload.Recipient)
		indexed = []common.Address{recipient, recipient}
		names = []string{"amount0In", "amount1In", "amount0Out", "amount1Out"}
		fields = []string{payload.AmountAIn, payload.AmountBIn, payload.AmountAOut, payload.AmountBOut}
	case model.SyncEventData:
		names = []string{"reserve0", "reserve1"}
		fields = []string{payload.ReserveA, payload.ReserveB}
	case model.TransferEventData:
		indexed = []common.Address{common.HexToAddress(payload.From), common.HexToAddress(payload.To)}
		names = []string{"value"}
		fields = []string{payload.Amount}
	default:
		return model.LogRecord{}, fmt.Errorf("unsupported payload %T for %s", event.Decoded, event.EventName)
	}

	args := make([]interface{}, len(fields))
	for i, value := range fields {
		v, err := parseBig(names[i], value)
		if err != nil {
			return model.LogRecord{}, fmt.Errorf("encode %s: %w", event.EventName, err)
		}
		args[i] = v
	}
	data, err := abiEvent.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", event.EventName, err)
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, abiEvent.ID.Hex())
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()).Hex())
	}

	return model.LogRecord{
		ChainID:   e.chainID,
		LogIndex:  event.Sequence,
		Address:   event.Pool,
		Topics:    topics,
		Data:      hexutil.Encode(data),
		Timestamp: uint64(event.Timestamp),
	}, nil
}

// EncodingSink attaches the log encoding to each event before handing the
// batch to Next.
type EncodingSink struct {
	Encoder *Encoder
	Next    storage.EventSink
}

func (s EncodingSink) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	out := make([]model.TypedEvent, len(events))
	for i, event := range events {
		record, err := s.Encoder.Encode(event)
		if err != nil {
			return fmt.Errorf("event %d: %w", event.Sequence, err)
		}
		event.Raw = &model.RawLogRef{Topics: record.Topics, Data: record.Data}
		out[i] = event
	}
	if s.Next == nil {
		return nil
	}
	return s.Next.PutEvents(ctx, out)
}
