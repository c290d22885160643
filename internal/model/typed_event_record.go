package model

import "encoding/json"

// TypedEventRecord is the JSON representation read back from a sink.
type TypedEventRecord struct {
	Pool      string          `json:"pool"`
	Sequence  uint64          `json:"sequence"`
	EventName string          `json:"event_name"`
	Timestamp uint32          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
	Raw       *RawLogRef      `json:"raw,omitempty"`
}
