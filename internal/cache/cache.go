// Package cache persists transport answers under a content-addressed file
// layout: {root}/{endpoint hash}/{argument digest}.{kind}.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"paraScope/internal/chain"
	"paraScope/internal/scale"
)

// Entry kinds, used as file extensions.
const (
	KindBlockHash = "hash"
	KindBlock     = "block"
	KindStorage   = "storage"
	KindMetadata  = "metadata"
)

var _ chain.Transport = (*Cache)(nil)

// Observer is told about every lookup outcome.
type Observer interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

// Cache wraps a Transport. Answers with a pinned block are written through
// to disk before they are returned; an empty file marks an absent answer.
// Latest-block answers and subscriptions are never stored.
type Cache struct {
	next     chain.Transport
	dir      string
	logger   *zap.Logger
	observer Observer
	group    singleflight.Group
}

// New roots the endpoint's cache directory under root.
func New(root string, next chain.Transport, logger *zap.Logger, observer Observer) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		next:     next,
		dir:      filepath.Join(root, EndpointHash(next.Endpoint())),
		logger:   logger,
		observer: observer,
	}
}

// EndpointHash names the per-endpoint directory.
func EndpointHash(endpoint string) string {
	return strconv.FormatUint(xxhash.Sum64String(endpoint), 16)
}

// ArgumentDigest hashes an argument tuple; each member is length-prefixed so
// distinct tuples never collide by concatenation.
func ArgumentDigest(args ...[]byte) string {
	h, _ := blake2b.New256(nil)
	for _, a := range args {
		h.Write(scale.AppendLengthPrefixed(nil, a))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the file holding an entry.
func (c *Cache) Path(kind string, args ...[]byte) string {
	return filepath.Join(c.dir, ArgumentDigest(args...)+"."+kind)
}

func (c *Cache) Endpoint() string {
	return c.next.Endpoint()
}

func (c *Cache) BlockHash(ctx context.Context, number uint32) ([]byte, error) {
	return c.get(ctx, KindBlockHash, [][]byte{scale.AppendU32(nil, number)}, func(ctx context.Context) ([]byte, error) {
		return c.next.BlockHash(ctx, number)
	})
}

func (c *Cache) Block(ctx context.Context, hash []byte) ([]byte, error) {
	return c.get(ctx, KindBlock, [][]byte{hash}, func(ctx context.Context) ([]byte, error) {
		return c.next.Block(ctx, hash)
	})
}

func (c *Cache) Storage(ctx context.Context, key, at []byte) ([]byte, error) {
	if at == nil {
		return c.next.Storage(ctx, key, nil)
	}
	return c.get(ctx, KindStorage, [][]byte{key, at}, func(ctx context.Context) ([]byte, error) {
		return c.next.Storage(ctx, key, at)
	})
}

func (c *Cache) Metadata(ctx context.Context, at []byte) ([]byte, error) {
	if at == nil {
		return c.next.Metadata(ctx, nil)
	}
	return c.get(ctx, KindMetadata, [][]byte{at}, func(ctx context.Context) ([]byte, error) {
		return c.next.Metadata(ctx, at)
	})
}

func (c *Cache) ChainName(ctx context.Context) (string, error) {
	return c.next.ChainName(ctx)
}

func (c *Cache) FinalizedHead(ctx context.Context) ([]byte, error) {
	return c.next.FinalizedHead(ctx)
}

func (c *Cache) SubscribeFinalized(ctx context.Context, out chan<- []byte) error {
	return c.next.SubscribeFinalized(ctx, out)
}

// Close releases the wrapped transport.
func (c *Cache) Close() {
	if closer, ok := c.next.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Cache) get(ctx context.Context, kind string, args [][]byte, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	path := c.Path(kind, args...)
	if data, ok, err := lookup(path, kind); err != nil {
		return nil, err
	} else if ok {
		c.hit(kind)
		return data, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		// A concurrent flight may have landed the entry.
		if data, ok, err := lookup(path, kind); err != nil || ok {
			return data, err
		}
		c.miss(kind)
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if data == nil && !absenceIsFinal(kind) {
			return data, nil
		}
		raced, err := c.write(path, data)
		if err != nil {
			return nil, err
		}
		if raced {
			// The existing entry wins over our own copy.
			data, _, err = read(path)
		}
		return data, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// absenceIsFinal reports whether an absent answer can be stored. A block
// number past the head has no hash yet but will have one later.
func absenceIsFinal(kind string) bool {
	return kind != KindBlockHash
}

// lookup is read with non-final absences treated as missing, so empty
// entries left by older runs are fetched again.
func lookup(path, kind string) ([]byte, bool, error) {
	data, ok, err := read(path)
	if ok && data == nil && !absenceIsFinal(kind) {
		return nil, false, nil
	}
	return data, ok, err
}

// read reports ok=false when no entry exists. An empty entry reads as nil.
func read(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if len(data) == 0 {
		return nil, true, nil
	}
	return data, true, nil
}

// write creates the entry only if it is absent and reports whether another
// writer got there first. Content lands in a temp file that is hard-linked
// into place, so readers never see a partial entry.
func (c *Cache) write(path string, data []byte) (bool, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return false, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("create cache tmp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("write cache tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close cache tmp: %w", err)
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			c.logger.Debug("cache entry raced", zap.String("path", path))
			return true, nil
		}
		return false, fmt.Errorf("link cache entry: %w", err)
	}
	return false, nil
}

func (c *Cache) hit(kind string) {
	if c.observer != nil {
		c.observer.CacheHit(kind)
	}
}

func (c *Cache) miss(kind string) {
	if c.observer != nil {
		c.observer.CacheMiss(kind)
	}
}
