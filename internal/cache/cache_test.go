package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paraScope/internal/scale"
)

type fakeTransport struct {
	calls   atomic.Int32
	delay   time.Duration
	storage map[string][]byte
	err     error
}

func (f *fakeTransport) Endpoint() string { return "wss://fake.example" }

func (f *fakeTransport) BlockHash(ctx context.Context, number uint32) ([]byte, error) {
	f.calls.Add(1)
	if number > 100 {
		return nil, nil
	}
	return []byte{byte(number)}, f.err
}

func (f *fakeTransport) Block(ctx context.Context, hash []byte) ([]byte, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	return append([]byte("block-"), hash...), f.err
}

func (f *fakeTransport) Storage(ctx context.Context, key, at []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.storage[string(key)], nil
}

func (f *fakeTransport) Metadata(ctx context.Context, at []byte) ([]byte, error) {
	f.calls.Add(1)
	return []byte("meta"), f.err
}

func (f *fakeTransport) ChainName(ctx context.Context) (string, error) { return "Fake", nil }

func (f *fakeTransport) FinalizedHead(ctx context.Context) ([]byte, error) { return []byte{100}, nil }

func (f *fakeTransport) SubscribeFinalized(ctx context.Context, out chan<- []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

type countingObserver struct {
	mu           sync.Mutex
	hits, misses int
}

func (o *countingObserver) CacheHit(string)  { o.mu.Lock(); o.hits++; o.mu.Unlock() }
func (o *countingObserver) CacheMiss(string) { o.mu.Lock(); o.misses++; o.mu.Unlock() }

func TestCacheIdempotence(t *testing.T) {
	root := t.TempDir()
	ft := &fakeTransport{storage: map[string][]byte{"k": []byte("value")}}
	obs := &countingObserver{}
	c := New(root, ft, nil, obs)
	ctx := context.Background()

	first, err := c.Storage(ctx, []byte("k"), []byte{1})
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := c.Storage(ctx, []byte("k"), []byte{1})
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !bytes.Equal(first, second) || string(first) != "value" {
		t.Fatalf("reads differ: %q %q", first, second)
	}
	if ft.calls.Load() != 1 {
		t.Fatalf("transport calls: %d", ft.calls.Load())
	}
	if obs.hits != 1 || obs.misses != 1 {
		t.Fatalf("hits=%d misses=%d", obs.hits, obs.misses)
	}

	if _, err := os.Stat(c.Path(KindStorage, []byte("k"), []byte{1})); err != nil {
		t.Fatalf("entry not on disk: %v", err)
	}
}

func TestCacheLatestIsNotStored(t *testing.T) {
	ft := &fakeTransport{storage: map[string][]byte{"k": []byte("v")}}
	c := New(t.TempDir(), ft, nil, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Storage(ctx, []byte("k"), nil); err != nil {
			t.Fatalf("read: %v", err)
		}
		if _, err := c.Metadata(ctx, nil); err != nil {
			t.Fatalf("metadata: %v", err)
		}
	}
	if ft.calls.Load() != 4 {
		t.Fatalf("transport calls: %d", ft.calls.Load())
	}
}

func TestCacheEmptyAnswerSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	ft := &fakeTransport{storage: map[string][]byte{}}
	ctx := context.Background()

	c := New(root, ft, nil, nil)
	v, err := c.Storage(ctx, []byte("absent"), []byte{1})
	if err != nil || v != nil {
		t.Fatalf("absent value: %x %v", v, err)
	}
	info, err := os.Stat(c.Path(KindStorage, []byte("absent"), []byte{1}))
	if err != nil || info.Size() != 0 {
		t.Fatalf("empty entry: %v %v", info, err)
	}

	restarted := New(root, ft, nil, nil)
	v, err = restarted.Storage(ctx, []byte("absent"), []byte{1})
	if err != nil || v != nil {
		t.Fatalf("replayed absent value: %x %v", v, err)
	}
	if ft.calls.Load() != 1 {
		t.Fatalf("transport calls: %d", ft.calls.Load())
	}
}

func TestCacheUnproducedBlockHashIsRefetched(t *testing.T) {
	root := t.TempDir()
	ft := &fakeTransport{}
	ctx := context.Background()
	c := New(root, ft, nil, nil)

	for i := 0; i < 2; i++ {
		v, err := c.BlockHash(ctx, 500)
		if err != nil || v != nil {
			t.Fatalf("absent hash: %x %v", v, err)
		}
	}
	if ft.calls.Load() != 2 {
		t.Fatalf("transport calls: %d", ft.calls.Load())
	}
	path := c.Path(KindBlockHash, scale.AppendU32(nil, 500))
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("absent hash stored: %v", err)
	}

	// An empty entry from an older run is ignored too.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.BlockHash(ctx, 500); err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ft.calls.Load() != 3 {
		t.Fatalf("stale empty entry served: %d calls", ft.calls.Load())
	}

	v, err := c.BlockHash(ctx, 7)
	if err != nil || !bytes.Equal(v, []byte{7}) {
		t.Fatalf("hash 7: %x %v", v, err)
	}
	if _, err := c.BlockHash(ctx, 7); err != nil || ft.calls.Load() != 4 {
		t.Fatalf("produced hash not cached: %d calls %v", ft.calls.Load(), err)
	}
}

func TestCacheErrorsAreNotStored(t *testing.T) {
	ft := &fakeTransport{err: errors.New("boom")}
	c := New(t.TempDir(), ft, nil, nil)
	ctx := context.Background()
	if _, err := c.Storage(ctx, []byte("k"), []byte{1}); err == nil {
		t.Fatalf("expected transport error")
	}
	ft.err = nil
	ft.storage = map[string][]byte{"k": []byte("later")}
	v, err := c.Storage(ctx, []byte("k"), []byte{1})
	if err != nil || string(v) != "later" {
		t.Fatalf("after error: %q %v", v, err)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	ft := &fakeTransport{delay: 50 * time.Millisecond}
	c := New(t.TempDir(), ft, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Block(ctx, []byte{7})
			if err != nil {
				t.Errorf("block: %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()
	if ft.calls.Load() != 1 {
		t.Fatalf("transport calls: %d", ft.calls.Load())
	}
	for _, r := range results {
		if string(r) != "block-\x07" {
			t.Fatalf("result %q", r)
		}
	}
}

func TestArgumentDigestSeparatesTuples(t *testing.T) {
	if ArgumentDigest([]byte("ab"), []byte("c")) == ArgumentDigest([]byte("a"), []byte("bc")) {
		t.Fatalf("tuples collide")
	}
	if EndpointHash("a") == EndpointHash("b") {
		t.Fatalf("endpoint hashes collide")
	}
}
