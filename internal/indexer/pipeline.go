// Package indexer runs one pipeline per chain: it walks or follows blocks,
// decodes them against the metadata in force and publishes records to the
// merge queue.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paraScope/internal/chain"
	"paraScope/internal/emit"
	"paraScope/internal/format"
	"paraScope/internal/model"
	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

// Config holds runtime settings for one pipeline.
type Config struct {
	// URL names the chain: env and sovereign, plus the para id the chain is
	// expected to report.
	URL model.DotUrl
	// AsOf selects historical mode; nil runs live.
	AsOf *model.DotUrl
	// AsOfTimestamp is the start time in milliseconds when AsOf carries no
	// block number.
	AsOfTimestamp uint64

	Pacing       time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	BlockTime    time.Duration
	MetadataMemo int
	BaseWait     time.Duration
}

func (c *Config) defaults() {
	if c.Pacing <= 0 {
		c.Pacing = 6 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.BlockTime <= 0 {
		c.BlockTime = 12 * time.Second
	}
	if c.BaseWait <= 0 {
		c.BaseWait = 250 * time.Millisecond
	}
}

// Shared is the process-wide state every pipeline takes part in.
type Shared struct {
	Queue *emit.Queue
	Epoch *emit.Epoch
	Base  *emit.BaseTimestamp
}

// Inclusion tells a child which of its blocks the parent included.
type Inclusion struct {
	ParaID          uint32
	ParentBlock     uint32
	ParentTimestamp *uint64
	Head            common.Hash
}

// Annotator adds links to a decoded block before it is published.
type Annotator interface {
	Annotate(md *registry.Metadata, b *model.Block)
}

// Checkpoints remembers the last block a chain emitted.
type Checkpoints interface {
	Load(ctx context.Context, chain string) (uint32, bool, error)
	Save(ctx context.Context, chain string, number uint32) error
}

// Pipeline indexes a single chain.
type Pipeline struct {
	cfg       Config
	transport chain.Transport
	shared    Shared
	logger    *zap.Logger

	Annotator   Annotator
	Hooks       Hooks
	Checkpoints Checkpoints
	// Children carries inclusions to child pipelines, keyed by para id. The
	// pipeline is their only sender and closes them when it returns.
	Children map[uint32]chan<- Inclusion
	// Inclusions drives a child pipeline in historical mode.
	Inclusions <-chan Inclusion

	guard  emit.Guard
	url    model.DotUrl
	paraID *uint32
	memo   *metadataMemo
	pacer  *rate.Limiter
	last   *uint32
}

func NewPipeline(cfg Config, transport chain.Transport, shared Shared, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.defaults()
	return &Pipeline{
		cfg:       cfg,
		transport: transport,
		shared:    shared,
		logger:    logger,
		url:       cfg.URL.Chain(),
		memo:      newMetadataMemo(cfg.MetadataMemo),
	}
}

// URL is the chain address, final once the para id has been read.
func (p *Pipeline) URL() model.DotUrl {
	return p.url
}

// Run indexes until ctx ends, the data epoch changes or the chain fails.
// An epoch change is a clean exit.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.transport == nil {
		return fmt.Errorf("transport is nil")
	}
	if p.shared.Queue == nil || p.shared.Epoch == nil || p.shared.Base == nil {
		return fmt.Errorf("shared state is incomplete")
	}
	if p.Hooks == nil {
		p.Hooks = nopHooks{}
	}
	p.guard = p.shared.Epoch.Guard()
	ctx, cancel := p.guard.Context(ctx)
	defer cancel()
	defer func() {
		for _, ch := range p.Children {
			close(ch)
		}
	}()

	err := p.run(ctx)
	switch {
	case errors.Is(err, emit.ErrStale) || errors.Is(context.Cause(ctx), emit.ErrStale):
		p.logger.Info("data epoch changed, pipeline exiting", zap.Uint64("epoch", p.guard.Epoch()))
		return nil
	case err != nil && ctx.Err() == nil:
		p.logger.Error("pipeline stopped", zap.Error(err))
		p.Hooks.PipelineStopped(p.url.String())
	}
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	if err := p.start(ctx); err != nil {
		return err
	}
	switch {
	case p.cfg.AsOf == nil:
		return p.live(ctx)
	case p.paraID != nil:
		return p.follow(ctx)
	default:
		return p.walk(ctx)
	}
}

// start resolves the para id and display name and announces the chain.
func (p *Pipeline) start(ctx context.Context) error {
	raw, err := p.fetch(ctx, "para id", func(ctx context.Context) ([]byte, error) {
		return p.transport.Storage(ctx, chain.KeyParachainID, nil)
	})
	if err != nil {
		return err
	}
	if raw != nil {
		id, err := scale.NewCursor(raw).ReadU32()
		if err != nil {
			return fmt.Errorf("para id: %w", err)
		}
		if want := p.cfg.URL.ParaID; want != nil && *want != id {
			p.logger.Warn("para id differs from configuration", zap.Uint32("configured", *want), zap.Uint32("reported", id))
		}
		p.paraID = &id
	}
	p.url.ParaID = p.paraID
	p.logger = p.logger.With(zap.String("chain", p.url.String()))

	name, err := p.transport.ChainName(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.interrupted(ctx)
		}
		p.logger.Warn("chain name unavailable", zap.Error(err))
		name = ""
	}

	p.logger.Info("pipeline started", zap.String("name", name), zap.Bool("live", p.cfg.AsOf == nil))
	return p.publish(ctx, model.NewChain(p.guard.Epoch(), model.ChainInfo{
		URL:      p.url,
		Name:     name,
		Endpoint: p.transport.Endpoint(),
		ParaID:   p.paraID,
	}))
}

// live follows the finalized head stream.
func (p *Pipeline) live(ctx context.Context) error {
	hashes := make(chan []byte, 16)
	errs := make(chan error, 1)
	go func() { errs <- p.transport.SubscribeFinalized(ctx, hashes) }()

	for {
		select {
		case <-ctx.Done():
			return p.interrupted(ctx)
		case err := <-errs:
			if ctx.Err() != nil {
				return p.interrupted(ctx)
			}
			if err == nil {
				err = errors.New("stream ended")
			}
			return fmt.Errorf("finalized heads: %w: %w", chain.ErrTransportFatal, err)
		case hash := <-hashes:
			if err := p.guard.Check(); err != nil {
				return err
			}
			if err := p.block(ctx, hash, nil); err != nil {
				if !errors.Is(err, chain.ErrRangeLost) {
					return err
				}
				p.logger.Warn("finalized block unavailable", zap.Error(err))
			}
		}
	}
}

// walk is historical parent mode: ascending block numbers, one emission per
// pacing interval.
func (p *Pipeline) walk(ctx context.Context) error {
	number, err := p.startNumber(ctx)
	if err != nil {
		return err
	}
	if p.Checkpoints != nil {
		last, ok, err := p.Checkpoints.Load(ctx, p.url.String())
		if err != nil {
			return err
		}
		if ok && last >= number {
			number = last + 1
			p.logger.Info("resume from checkpoint", zap.Uint32("last_emitted", last), zap.Uint32("from", number))
		}
	}
	p.pacer = rate.NewLimiter(rate.Every(p.cfg.Pacing), 1)

	for {
		hash, err := p.fetch(ctx, "block hash", func(ctx context.Context) ([]byte, error) {
			return p.transport.BlockHash(ctx, number)
		})
		if err != nil {
			if !errors.Is(err, chain.ErrRangeLost) {
				return err
			}
			p.logger.Warn("block hash unavailable, skipping", zap.Uint32("block", number), zap.Error(err))
			number++
			continue
		}
		if hash == nil {
			p.logger.Debug("block not produced yet", zap.Uint32("block", number))
			if err := p.sleep(ctx, p.cfg.Pacing); err != nil {
				return err
			}
			continue
		}
		if err := p.block(ctx, hash, nil); err != nil {
			if !errors.Is(err, chain.ErrRangeLost) {
				return err
			}
			p.logger.Warn("block unavailable, skipping", zap.Uint32("block", number), zap.Error(err))
		}
		number++
	}
}

// follow is historical child mode: the parent names every block.
func (p *Pipeline) follow(ctx context.Context) error {
	if p.Inclusions == nil {
		return fmt.Errorf("child %s has no inclusion feed", p.url)
	}
	if p.owns() {
		if _, err := p.publishOwnBase(ctx); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return p.interrupted(ctx)
		case inc, ok := <-p.Inclusions:
			if !ok {
				p.logger.Info("inclusion feed closed")
				return nil
			}
			if err := p.guard.Check(); err != nil {
				return err
			}
			if err := p.block(ctx, inc.Head[:], &inc); err != nil {
				if !errors.Is(err, chain.ErrRangeLost) {
					return err
				}
				p.logger.Warn("included block unavailable", zap.Uint32("parent_block", inc.ParentBlock), zap.Error(err))
			}
		}
	}
}

// owns reports whether the start address names this chain.
func (p *Pipeline) owns() bool {
	return p.cfg.AsOf != nil && p.cfg.AsOf.Chain().String() == p.url.String()
}

// startNumber picks the first block of historical parent mode. The owning
// chain starts at the named block and publishes its timestamp; every other
// chain waits for that timestamp and aligns to it.
func (p *Pipeline) startNumber(ctx context.Context) (uint32, error) {
	if p.owns() {
		if p.cfg.AsOf.Block == nil && p.cfg.AsOfTimestamp != 0 {
			p.shared.Base.Set(p.cfg.AsOfTimestamp)
			return p.align(ctx, p.cfg.AsOfTimestamp)
		}
		return p.publishOwnBase(ctx)
	}
	target, err := p.shared.Base.Wait(ctx, p.guard, p.cfg.BaseWait)
	if err != nil {
		if ctx.Err() != nil {
			return 0, p.interrupted(ctx)
		}
		return 0, err
	}
	return p.align(ctx, target)
}

// publishOwnBase publishes the timestamp of the start block, the finalized
// head when the start address names no block.
func (p *Pipeline) publishOwnBase(ctx context.Context) (uint32, error) {
	if p.cfg.AsOf.Block == nil && p.cfg.AsOfTimestamp != 0 {
		p.shared.Base.Set(p.cfg.AsOfTimestamp)
		return 0, nil
	}
	var number uint32
	if p.cfg.AsOf.Block != nil {
		number = *p.cfg.AsOf.Block
	} else {
		head, err := p.head(ctx)
		if err != nil {
			return 0, err
		}
		number = head
	}
	ts, err := p.timestampOf(ctx, number)
	if err != nil {
		var ue *undecodableError
		if !errors.As(err, &ue) {
			return 0, err
		}
		p.logger.Warn("start block undecodable, base timestamp not published", zap.Uint32("block", number), zap.Error(err))
		p.Hooks.DecodeError(p.url.String(), ue.kind)
		return number, nil
	}
	if p.shared.Base.Set(ts) {
		p.logger.Info("base timestamp published", zap.Uint32("block", number), zap.Uint64("timestamp", ts))
	}
	return number, nil
}

// align finds the block closest to target.
func (p *Pipeline) align(ctx context.Context, target uint64) (uint32, error) {
	head, err := p.head(ctx)
	if err != nil {
		return 0, err
	}
	res, err := alignToTimestamp(ctx, target, head, p.timestampOf, p.cfg.BlockTime)
	if err != nil {
		return 0, fmt.Errorf("align to %d: %w", target, err)
	}
	p.logger.Info("aligned to base timestamp",
		zap.Uint64("target", target),
		zap.Uint32("block", res.Number),
		zap.Uint64("timestamp", res.Timestamp),
		zap.Duration("block_time", res.BlockTime),
	)
	return res.Number, nil
}

// head returns the finalized block number.
func (p *Pipeline) head(ctx context.Context) (uint32, error) {
	hash, err := p.fetch(ctx, "finalized head", p.transport.FinalizedHead)
	if err != nil {
		return 0, err
	}
	if hash == nil {
		return 0, fmt.Errorf("finalized head: %w", chain.ErrRangeLost)
	}
	d, err := p.fetch(ctx, "block", func(ctx context.Context) ([]byte, error) {
		return p.transport.Block(ctx, hash)
	})
	if err != nil {
		return 0, err
	}
	if d == nil {
		return 0, fmt.Errorf("finalized block %x: %w", hash, chain.ErrRangeLost)
	}
	h, err := format.DecodeHeader(scale.NewCursor(d))
	if err != nil {
		return 0, fmt.Errorf("finalized header: %w", err)
	}
	return uint32(h.Number), nil
}

// timestampOf reads the Timestamp.set value of a block, zero when absent.
func (p *Pipeline) timestampOf(ctx context.Context, number uint32) (uint64, error) {
	hash, err := p.fetch(ctx, "block hash", func(ctx context.Context) ([]byte, error) {
		return p.transport.BlockHash(ctx, number)
	})
	if err != nil {
		return 0, err
	}
	if hash == nil {
		return 0, fmt.Errorf("block %d: %w", number, chain.ErrRangeLost)
	}
	d, err := p.decodeBody(ctx, hash)
	if err != nil {
		return 0, err
	}
	if d.timestamp == nil {
		return 0, nil
	}
	return *d.timestamp, nil
}

// fetch runs a transport call with retries and checks the epoch on both
// sides of the suspension.
func (p *Pipeline) fetch(ctx context.Context, what string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := p.guard.Check(); err != nil {
		return nil, err
	}
	var out []byte
	err := withRetry(ctx, p.logger, what, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.interrupted(ctx)
		}
		return nil, err
	}
	if err := p.guard.Check(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) publish(ctx context.Context, rec model.Record) error {
	if err := p.guard.Check(); err != nil {
		return err
	}
	if err := p.shared.Queue.Push(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return p.interrupted(ctx)
		}
		return err
	}
	return nil
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return p.interrupted(ctx)
	case <-timer.C:
	}
	return p.guard.Check()
}

// interrupted maps a done context to ErrStale when an epoch change ended it.
func (p *Pipeline) interrupted(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), emit.ErrStale) {
		return emit.ErrStale
	}
	return ctx.Err()
}
