package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"

	"paraScope/internal/chain"
	"paraScope/internal/registry"
)

var errBadMetadata = errors.New("metadata unusable")

// metadataMemo maps a runtime version digest to its decoded metadata. A nil
// entry marks a version whose metadata failed to decode.
type metadataMemo struct {
	entries *lru.Cache[string, *registry.Metadata]
}

func newMetadataMemo(size int) *metadataMemo {
	if size <= 0 {
		size = 8
	}
	entries, _ := lru.New[string, *registry.Metadata](size)
	return &metadataMemo{entries: entries}
}

func versionDigest(version []byte) string {
	sum := blake2b.Sum256(version)
	return hex.EncodeToString(sum[:])
}

// metadataAt resolves the metadata in force at a block. The runtime version
// storage entry selects the memo slot, so metadata is fetched once per
// runtime upgrade.
func (p *Pipeline) metadataAt(ctx context.Context, hash []byte) (*registry.Metadata, error) {
	version, err := p.fetch(ctx, "runtime version", func(ctx context.Context) ([]byte, error) {
		return p.transport.Storage(ctx, chain.KeyLastRuntimeUpgrade, hash)
	})
	if err != nil {
		return nil, err
	}
	key := versionDigest(version)
	if md, ok := p.memo.entries.Get(key); ok {
		if md == nil {
			return nil, errBadMetadata
		}
		return md, nil
	}

	raw, err := p.fetch(ctx, "metadata", func(ctx context.Context) ([]byte, error) {
		return p.transport.Metadata(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("metadata at %x: %w", hash, chain.ErrRangeLost)
	}
	md, err := registry.DecodeMetadata(raw)
	if err != nil {
		p.memo.entries.Add(key, nil)
		return nil, fmt.Errorf("%w: %w", errBadMetadata, err)
	}
	p.memo.entries.Add(key, md)
	return md, nil
}
