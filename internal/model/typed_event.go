package model

// TypedEvent is a pool event ready to be written to a sink.
type TypedEvent struct {
	Pool      string      `json:"pool"`
	Sequence  uint64      `json:"sequence"`
	EventName string      `json:"event_name"`
	Timestamp uint32      `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
	Raw       *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps the EVM log encoding of an event for traceability.
type RawLogRef struct {
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}
