package dex

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"minDex/internal/model"
)

// PairDecoder turns pair logs back into typed events.
type PairDecoder struct {
	abi         abi.ABI
	topicToName map[common.Hash]string
}

// NewPairDecoder builds a decoder over the pair ABI.
func NewPairDecoder() (*PairDecoder, error) {
	parsed, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}

	topicToName := make(map[common.Hash]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[event.ID] = name
	}

	return &PairDecoder{abi: parsed, topicToName: topicToName}, nil
}

func (d *PairDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[common.HexToHash(topic0)]
	return ok
}

func (d *PairDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, errors.New("missing topics")
	}
	eventName, ok := d.topicToName[common.HexToHash(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unknown topic0 %s", log.Topics[0])
	}

	event := d.abi.Events[eventName]
	data, err := decodeHex(log.Data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}

	indexed, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, data)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch eventName {
	case model.EventMint:
		decoded, err = decodeMint(indexed, values)
	case model.EventBurn:
		decoded, err = decodeBurn(indexed, values)
	case model.EventSwap:
		decoded, err = decodeSwap(indexed, values)
	case model.EventSync:
		decoded, err = decodeSync(values, uint32(log.Timestamp))
	case model.EventTransfer:
		decoded, err = decodeTransfer(indexed, values)
	default:
		return nil, fmt.Errorf("unsupported event %s", eventName)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventName, err)
	}

	return &model.TypedEvent{
		Pool:      common.HexToAddress(log.Address).Hex(),
		Sequence:  log.LogIndex,
		EventName: eventName,
		Timestamp: uint32(log.Timestamp),
		Decoded:   decoded,
		Raw: &model.RawLogRef{
			Topics: log.Topics,
			Data:   log.Data,
		},
	}, nil
}

func decodeMint(indexed, values map[string]interface{}) (model.MintEventData, error) {
	sender, err := asAddress(indexed["sender"])
	if err != nil {
		return model.MintEventData{}, fmt.Errorf("sender: %w", err)
	}
	amounts, err := bigFields(values, "amount0", "amount1")
	if err != nil {
		return model.MintEventData{}, err
	}
	return model.MintEventData{
		Recipient: sender.Hex(),
		AmountA:   amounts[0],
		AmountB:   amounts[1],
	}, nil
}

func decodeBurn(indexed, values map[string]interface{}) (model.BurnEventData, error) {
	to, err := asAddress(indexed["to"])
	if err != nil {
		return model.BurnEventData{}, fmt.Errorf("to: %w", err)
	}
	amounts, err := bigFields(values, "amount0", "amount1")
	if err != nil {
		return model.BurnEventData{}, err
	}
	return model.BurnEventData{
		Recipient: to.Hex(),
		AmountA:   amounts[0],
		AmountB:   amounts[1],
	}, nil
}

func decodeSwap(indexed, values map[string]interface{}) (model.SwapEventData, error) {
	to, err := asAddress(indexed["to"])
	if err != nil {
		return model.SwapEventData{}, fmt.Errorf("to: %w", err)
	}
	amounts, err := bigFields(values, "amount0In", "amount1In", "amount0Out", "amount1Out")
	if err != nil {
		return model.SwapEventData{}, err
	}
	return model.SwapEventData{
		Recipient:  to.Hex(),
		AmountAIn:  amounts[0],
		AmountBIn:  amounts[1],
		AmountAOut: amounts[2],
		AmountBOut: amounts[3],
	}, nil
}

func decodeSync(values map[string]interface{}, timestamp uint32) (model.SyncEventData, error) {
	reserves, err := bigFields(values, "reserve0", "reserve1")
	if err != nil {
		return model.SyncEventData{}, err
	}
	return model.SyncEventData{
		ReserveA:  reserves[0],
		ReserveB:  reserves[1],
		Timestamp: timestamp,
	}, nil
}

func decodeTransfer(indexed, values map[string]interface{}) (model.TransferEventData, error) {
	from, err := asAddress(indexed["from"])
	if err != nil {
		return model.TransferEventData{}, fmt.Errorf("from: %w", err)
	}
	to, err := asAddress(indexed["to"])
	if err != nil {
		return model.TransferEventData{}, fmt.Errorf("to: %w", err)
	}
	amounts, err := bigFields(values, "value")
	if err != nil {
		return model.TransferEventData{}, err
	}
	return model.TransferEventData{
		From:   from.Hex(),
		To:     to.Hex(),
		Amount: amounts[0],
	}, nil
}

func bigFields(values map[string]interface{}, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v, err := asBigInt(values[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[i] = v.String()
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) (map[string]interface{}, error) {
	indexedArgs := make(abi.Arguments, 0)
	for _, input := range event.Inputs {
		if input.Indexed {
			indexedArgs = append(indexedArgs, input)
		}
	}
	if len(indexedArgs) == 0 {
		return map[string]interface{}{}, nil
	}
	if len(topics) < len(indexedArgs)+1 {
		return nil, fmt.Errorf("insufficient topics for %s", event.Name)
	}

	hashes := make([]common.Hash, len(indexedArgs))
	for i := range indexedArgs {
		hashes[i] = common.HexToHash(topics[i+1])
	}

	out := make(map[string]interface{}, len(indexedArgs))
	if err := abi.ParseTopicsIntoMap(out, indexedArgs, hashes); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return out, nil
}

func unpackNonIndexed(event abi.Event, data []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := event.Inputs.NonIndexed().UnpackIntoMap(out, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return out, nil
}

func decodeHex(value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(value, "0x") {
		value = "0x" + value
	}
	return hexutil.Decode(value)
}

func parseBig(name, value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", name, value)
	}
	return v, nil
}
