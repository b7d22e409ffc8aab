package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// Decode error kinds.
const (
	DecodeErrorBlock     = "block"
	DecodeErrorMetadata  = "metadata"
	DecodeErrorExtrinsic = "extrinsic"
	DecodeErrorEvents    = "events"
)

// DecodeError records a part of a block that failed to decode and was
// skipped.
type DecodeError struct {
	URL   DotUrl        `json:"url"`
	Kind  string        `json:"kind"`
	Error string        `json:"error"`
	Raw   hexutil.Bytes `json:"raw,omitempty"`
}
