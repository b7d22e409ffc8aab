package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paraScope/internal/chain"
	"paraScope/internal/emit"
	"paraScope/internal/indexer"
	"paraScope/internal/model"
	"paraScope/internal/scale"
)

// idleChain announces itself and then waits on an empty finalized stream.
type idleChain struct {
	endpoint string
	paraID   *uint32

	mu     sync.Mutex
	closed bool
}

func (c *idleChain) Endpoint() string { return c.endpoint }

func (c *idleChain) BlockHash(ctx context.Context, number uint32) ([]byte, error) { return nil, nil }

func (c *idleChain) Block(ctx context.Context, hash []byte) ([]byte, error) { return nil, nil }

func (c *idleChain) Storage(ctx context.Context, key, at []byte) ([]byte, error) {
	if string(key) == string(chain.KeyParachainID) && c.paraID != nil {
		return scale.AppendU32(nil, *c.paraID), nil
	}
	return nil, nil
}

func (c *idleChain) Metadata(ctx context.Context, at []byte) ([]byte, error) { return nil, nil }

func (c *idleChain) ChainName(ctx context.Context) (string, error) { return c.endpoint, nil }

func (c *idleChain) FinalizedHead(ctx context.Context) ([]byte, error) { return nil, nil }

func (c *idleChain) SubscribeFinalized(ctx context.Context, out chan<- []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *idleChain) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type dialer struct {
	mu     sync.Mutex
	chains map[string]*idleChain
	fail   map[string]bool
	paras  map[string]uint32
}

func (d *dialer) dial(ctx context.Context, endpoint string) (chain.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[endpoint] {
		return nil, errors.New("connection refused")
	}
	c := &idleChain{endpoint: endpoint}
	if id, ok := d.paras[endpoint]; ok {
		c.paraID = &id
	}
	if d.chains == nil {
		d.chains = make(map[string]*idleChain)
	}
	d.chains[endpoint] = c
	return c, nil
}

func newShared() indexer.Shared {
	return indexer.Shared{Queue: emit.NewQueue(0), Epoch: &emit.Epoch{}, Base: &emit.BaseTimestamp{}}
}

// chains pops n NewChain records of the current epoch and returns them by
// endpoint.
func chains(t *testing.T, shared indexer.Shared, n int) map[string]model.ChainInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(map[string]model.ChainInfo)
	for len(out) < n {
		rec, err := shared.Queue.PopCurrent(ctx, shared.Epoch)
		if err != nil {
			t.Fatalf("after %d chains: %v", len(out), err)
		}
		if rec.Kind != model.KindNewChain {
			t.Fatalf("unexpected record %+v", rec)
		}
		out[rec.Chain.Endpoint] = *rec.Chain
	}
	return out
}

func TestValidate(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatalf("expected error for empty groups")
	}
	if err := Validate([]Group{{Env: "polkadot"}}); err == nil {
		t.Fatalf("expected error for missing parent")
	}
	if err := Validate([]Group{{Env: "moonbase", Parent: "wss://relay"}}); err == nil {
		t.Fatalf("expected error for unknown env")
	}
	dup := []Group{{Env: "polkadot", Parent: "wss://relay", Children: []Child{
		{Endpoint: "wss://a", ParaID: 1000},
		{Endpoint: "wss://b", ParaID: 1000},
	}}}
	if err := Validate(dup); err == nil {
		t.Fatalf("expected error for duplicate para id")
	}
	ok := []Group{{Env: "polkadot", Parent: "wss://relay", Children: []Child{{Endpoint: "wss://a", ParaID: 1000}}}}
	if err := Validate(ok); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestRunAnnouncesEveryChain(t *testing.T) {
	d := &dialer{
		fail:  map[string]bool{"wss://down": true},
		paras: map[string]uint32{"wss://para": 2000, "wss://down": 2004},
	}
	shared := newShared()
	groups := []Group{
		{Env: "polkadot", Parent: "wss://relay", Children: []Child{
			{Endpoint: "wss://para", ParaID: 2000},
			{Endpoint: "wss://down", ParaID: 2004},
		}},
		{Env: "polkadot", Parent: "wss://second"},
	}
	c := New(groups, d.dial, shared, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()

	got := chains(t, shared, 3)
	if got["wss://relay"].URL.String() != "polkadot:/0////" {
		t.Fatalf("relay url %s", got["wss://relay"].URL)
	}
	if got["wss://second"].URL.String() != "polkadot:/1////" {
		t.Fatalf("second url %s", got["wss://second"].URL)
	}
	if got["wss://para"].URL.String() != "polkadot:/0/2000///" {
		t.Fatalf("child url %s", got["wss://para"].URL)
	}

	cancel()
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for endpoint, ch := range d.chains {
		ch.mu.Lock()
		closed := ch.closed
		ch.mu.Unlock()
		if !closed {
			t.Fatalf("%s transport left open", endpoint)
		}
	}
}

func TestReloadStartsNewEpoch(t *testing.T) {
	d := &dialer{}
	shared := newShared()
	reload := make(chan []Group, 1)
	c := New([]Group{{Env: "polkadot", Parent: "wss://old"}}, d.dial, shared, Options{}, nil)
	c.Reload = reload

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()

	if _, ok := chains(t, shared, 1)["wss://old"]; !ok {
		t.Fatalf("old chain not announced")
	}

	// Rejected lists leave the running epoch alone.
	reload <- []Group{{Env: "polkadot"}}
	reload <- []Group{{Env: "kusama", Parent: "wss://new"}}

	got := chains(t, shared, 1)
	info, ok := got["wss://new"]
	if !ok {
		t.Fatalf("new chain not announced: %+v", got)
	}
	if shared.Epoch.Current() != 1 {
		t.Fatalf("epoch %d", shared.Epoch.Current())
	}
	if info.URL.Env != "kusama" {
		t.Fatalf("url %s", info.URL)
	}

	cancel()
	if err := <-errs; err != nil {
		t.Fatalf("run: %v", err)
	}
}
