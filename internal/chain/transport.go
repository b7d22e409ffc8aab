// Package chain is the transport facade: the byte-level operations a
// pipeline needs from a node, and the storage keys it reads.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrTransportFatal marks an endpoint that stayed unreachable after
	// retries.
	ErrTransportFatal = errors.New("transport unavailable")
	// ErrRangeLost marks data the node no longer serves, such as pruned
	// blocks.
	ErrRangeLost = errors.New("range lost")
)

// Transport answers with nil bytes when the node reports an absent value.
// A nil at means the latest block.
type Transport interface {
	Endpoint() string
	BlockHash(ctx context.Context, number uint32) ([]byte, error)
	Block(ctx context.Context, hash []byte) ([]byte, error)
	Storage(ctx context.Context, key, at []byte) ([]byte, error)
	Metadata(ctx context.Context, at []byte) ([]byte, error)
	ChainName(ctx context.Context) (string, error)
	FinalizedHead(ctx context.Context) ([]byte, error)
	// SubscribeFinalized sends finalized block hashes to out until ctx ends
	// or the stream fails.
	SubscribeFinalized(ctx context.Context, out chan<- []byte) error
}

// Well-known storage keys: twox128(pallet) ++ twox128(item).
var (
	KeyParachainID        = hexutil.MustDecode("0x0d715f2646c8f85767b5d2764bb2782604a74d81251e398fd8a0a4d55023bb3f")
	KeySystemEvents       = hexutil.MustDecode("0x26aa394eea5630e07c48ae0c9558cef780d41e5e16056765bc8461851072c9d7")
	KeyLastRuntimeUpgrade = hexutil.MustDecode("0x26aa394eea5630e07c48ae0c9558cef7f9cce9c888469bb1a0dceaa129672ef8")
)
