// Package format decodes the fixed outer shapes of chain data: blocks,
// extrinsics, event lists and cross-chain message envelopes.
package format

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"

	"paraScope/internal/scale"
)

// Digest item discriminants.
const (
	digestOther             = 0
	digestConsensus         = 4
	digestSeal              = 5
	digestPreRuntime        = 6
	digestRuntimeEnvUpdated = 8
)

type Header struct {
	ParentHash     common.Hash
	Number         uint64
	StateRoot      common.Hash
	ExtrinsicsRoot common.Hash
	// Digest holds each encoded digest item.
	Digest [][]byte
	// Raw is the full header encoding.
	Raw []byte
}

// Hash is blake2b-256 of the header encoding, the chain's block hash.
func (h *Header) Hash() common.Hash {
	return HeaderHash(h.Raw)
}

// Block is a header followed by length-prefixed extrinsic blobs, each kept
// with its own prefix.
type Block struct {
	Header     Header
	Extrinsics [][]byte
}

func HeaderHash(raw []byte) common.Hash {
	return common.Hash(blake2b.Sum256(raw))
}

// DecodeHeader reads one header from c.
func DecodeHeader(c *scale.Cursor) (Header, error) {
	start := c.Remaining()
	var h Header
	var err error
	if h.ParentHash, err = readHash(c); err != nil {
		return Header{}, fmt.Errorf("parent hash: %w", err)
	}
	if h.Number, err = c.ReadCompactU64(); err != nil {
		return Header{}, fmt.Errorf("number: %w", err)
	}
	if h.StateRoot, err = readHash(c); err != nil {
		return Header{}, fmt.Errorf("state root: %w", err)
	}
	if h.ExtrinsicsRoot, err = readHash(c); err != nil {
		return Header{}, fmt.Errorf("extrinsics root: %w", err)
	}
	n, err := c.ReadCompactU64()
	if err != nil {
		return Header{}, fmt.Errorf("digest length: %w", err)
	}
	if n > uint64(c.Len()) {
		return Header{}, fmt.Errorf("%d digest items, %d bytes left: %w", n, c.Len(), scale.ErrEndOfInput)
	}
	for i := uint64(0); i < n; i++ {
		item, err := readDigestItem(c)
		if err != nil {
			return Header{}, fmt.Errorf("digest item %d: %w", i, err)
		}
		h.Digest = append(h.Digest, item)
	}
	h.Raw = start[:len(start)-c.Len()]
	return h, nil
}

func readDigestItem(c *scale.Cursor) ([]byte, error) {
	start := c.Remaining()
	tag, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case digestConsensus, digestSeal, digestPreRuntime:
		if err := c.Skip(4); err != nil {
			return nil, err
		}
		fallthrough
	case digestOther:
		if _, err := c.ReadLengthPrefixed(); err != nil {
			return nil, err
		}
	case digestRuntimeEnvUpdated:
	default:
		return nil, fmt.Errorf("digest tag %d: %w", tag, scale.ErrInvalidEncoding)
	}
	return start[:len(start)-c.Len()], nil
}

// DecodeBlock parses a block encoding as produced by EncodeBlock.
func DecodeBlock(data []byte) (*Block, error) {
	c := scale.NewCursor(data)
	h, err := DecodeHeader(c)
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	n, err := c.ReadCompactU64()
	if err != nil {
		return nil, fmt.Errorf("extrinsic count: %w", err)
	}
	if n > uint64(c.Len()) {
		return nil, fmt.Errorf("%d extrinsics, %d bytes left: %w", n, c.Len(), scale.ErrEndOfInput)
	}
	b := &Block{Header: h, Extrinsics: make([][]byte, 0, n)}
	for i := uint64(0); i < n; i++ {
		start := c.Remaining()
		if _, err := c.ReadLengthPrefixed(); err != nil {
			return nil, fmt.Errorf("extrinsic %d: %w", i, err)
		}
		b.Extrinsics = append(b.Extrinsics, start[:len(start)-c.Len()])
	}
	if !c.Empty() {
		return nil, fmt.Errorf("block has %d trailing bytes: %w", c.Len(), scale.ErrInvalidEncoding)
	}
	return b, nil
}

// EncodeHeader builds a header encoding from its parts; digest items must
// already be encoded.
func EncodeHeader(parent common.Hash, number uint64, stateRoot, extrinsicsRoot common.Hash, digest [][]byte) []byte {
	out := append([]byte{}, parent[:]...)
	out = scale.AppendCompact(out, number)
	out = append(out, stateRoot[:]...)
	out = append(out, extrinsicsRoot[:]...)
	out = scale.AppendCompact(out, uint64(len(digest)))
	for _, item := range digest {
		out = append(out, item...)
	}
	return out
}

// EncodeBlock joins a header encoding with length-prefixed extrinsics.
func EncodeBlock(header []byte, extrinsics [][]byte) []byte {
	out := append([]byte{}, header...)
	out = scale.AppendCompact(out, uint64(len(extrinsics)))
	for _, x := range extrinsics {
		out = append(out, x...)
	}
	return out
}

func readHash(c *scale.Cursor) (common.Hash, error) {
	b, err := c.ReadBytes(common.HashLength)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(b), nil
}
