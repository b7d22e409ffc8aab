// Package correlator wires chain groups into pipelines: one parent and its
// children per group, joined by bounded inclusion channels, all feeding the
// shared merge queue. It also attaches message links to decoded blocks.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paraScope/internal/chain"
	"paraScope/internal/indexer"
	"paraScope/internal/model"
)

// Child is a parachain endpoint of a group.
type Child struct {
	Endpoint string
	ParaID   uint32
}

// Group is a relay chain and its parachains. Its sovereign index is its
// position in the configured list.
type Group struct {
	Env      string
	Parent   string
	Children []Child
}

// Dialer opens a transport for an endpoint.
type Dialer func(ctx context.Context, endpoint string) (chain.Transport, error)

// Options holds settings shared by every pipeline.
type Options struct {
	// Start selects historical mode; nil runs live.
	Start          *model.DotUrl
	StartTimestamp uint64
	Pacing         time.Duration
	ChannelSize    int
	MaxRetries     int
	RetryBackoff   time.Duration
	MetadataMemo   int
}

// Correlator runs all configured groups for one data epoch at a time.
type Correlator struct {
	dial   Dialer
	shared indexer.Shared
	opts   Options
	logger *zap.Logger

	Hooks       indexer.Hooks
	Checkpoints indexer.Checkpoints
	// Reload delivers replacement groups. Each delivery bumps the data epoch
	// and restarts every pipeline.
	Reload <-chan []Group

	groups []Group
}

func New(groups []Group, dial Dialer, shared indexer.Shared, opts Options, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChannelSize <= 0 {
		opts.ChannelSize = 16
	}
	return &Correlator{
		dial:   dial,
		shared: shared,
		opts:   opts,
		logger: logger,
		groups: groups,
	}
}

// Validate checks the group list before anything is dialed.
func Validate(groups []Group) error {
	if len(groups) == 0 {
		return errors.New("no chain groups configured")
	}
	for i, g := range groups {
		if g.Parent == "" {
			return fmt.Errorf("group %d: parent endpoint is required", i)
		}
		if err := model.ChainUrl(g.Env, uint32(i), nil).Validate(); err != nil {
			return fmt.Errorf("group %d: %w", i, err)
		}
		seen := make(map[uint32]bool)
		for _, c := range g.Children {
			if c.Endpoint == "" {
				return fmt.Errorf("group %d: child endpoint is required", i)
			}
			if err := model.ChainUrl(g.Env, uint32(i), &c.ParaID).Validate(); err != nil {
				return fmt.Errorf("group %d child %s: %w", i, c.Endpoint, err)
			}
			if seen[c.ParaID] {
				return fmt.Errorf("group %d: para id %d listed twice", i, c.ParaID)
			}
			seen[c.ParaID] = true
		}
	}
	return nil
}

// Run indexes until ctx ends. Pipelines that fail are logged and stay
// stopped until the next epoch; the rest keep going.
func (c *Correlator) Run(ctx context.Context) error {
	if err := Validate(c.groups); err != nil {
		return err
	}
	for {
		epochCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.runEpoch(epochCtx)
		}()

		next := c.awaitReload(ctx, done)
		cancel()
		<-done
		if next == nil {
			return nil
		}
		c.groups = next
	}
}

// awaitReload blocks until ctx ends or a valid group list arrives, in which
// case the epoch has been bumped. It returns nil when ctx ends.
func (c *Correlator) awaitReload(ctx context.Context, done <-chan struct{}) []Group {
	reload := c.Reload
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			c.logger.Info("all pipelines stopped")
			done = nil
		case groups, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			if err := Validate(groups); err != nil {
				c.logger.Error("reloaded groups rejected", zap.Error(err))
				continue
			}
			epoch := c.shared.Epoch.Bump()
			c.logger.Info("data source changed", zap.Uint64("epoch", epoch), zap.Int("groups", len(groups)))
			return groups
		}
	}
}

// runEpoch starts every pipeline of the current groups and waits for them.
func (c *Correlator) runEpoch(ctx context.Context) {
	c.shared.Base.Reset()
	if c.opts.Start != nil && c.opts.Start.Block == nil && c.opts.StartTimestamp != 0 {
		c.shared.Base.Set(c.opts.StartTimestamp)
	}
	linker := NewLinker(NewKeyRegistry(), c.logger.Named("links"))

	var g errgroup.Group
	for i, group := range c.groups {
		c.startGroup(ctx, &g, uint32(i), group, linker)
	}
	_ = g.Wait()
}

func (c *Correlator) startGroup(ctx context.Context, g *errgroup.Group, sovereign uint32, group Group, linker *Linker) {
	historical := c.opts.Start != nil
	children := make(map[uint32]chan<- indexer.Inclusion, len(group.Children))

	for _, child := range group.Children {
		paraID := child.ParaID
		url := model.ChainUrl(group.Env, sovereign, &paraID)
		var feed chan indexer.Inclusion
		if historical {
			feed = make(chan indexer.Inclusion, c.opts.ChannelSize)
			children[paraID] = feed
		}
		endpoint := child.Endpoint
		g.Go(func() error {
			p, transport, err := c.pipeline(ctx, url, endpoint, linker)
			if err != nil {
				c.logger.Error("child unavailable", zap.String("chain", url.String()), zap.String("endpoint", endpoint), zap.Error(err))
				if feed != nil {
					go drain(feed)
				}
				return nil
			}
			if feed != nil {
				p.Inclusions = feed
			}
			c.runPipeline(ctx, p, transport)
			if feed != nil {
				// The parent may still be sending.
				go drain(feed)
			}
			return nil
		})
	}

	url := model.ChainUrl(group.Env, sovereign, nil)
	g.Go(func() error {
		p, transport, err := c.pipeline(ctx, url, group.Parent, linker)
		if err != nil {
			c.logger.Error("parent unavailable", zap.String("chain", url.String()), zap.String("endpoint", group.Parent), zap.Error(err))
			for _, ch := range children {
				close(ch)
			}
			return nil
		}
		if historical {
			p.Children = children
		}
		c.runPipeline(ctx, p, transport)
		return nil
	})
}

func (c *Correlator) pipeline(ctx context.Context, url model.DotUrl, endpoint string, linker *Linker) (*indexer.Pipeline, chain.Transport, error) {
	transport, err := c.dial(ctx, endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	p := indexer.NewPipeline(indexer.Config{
		URL:           url,
		AsOf:          c.opts.Start,
		AsOfTimestamp: c.opts.StartTimestamp,
		Pacing:        c.opts.Pacing,
		MaxRetries:    c.opts.MaxRetries,
		RetryBackoff:  c.opts.RetryBackoff,
		MetadataMemo:  c.opts.MetadataMemo,
	}, transport, c.shared, c.logger.Named("pipeline"))
	p.Annotator = linker
	p.Hooks = c.Hooks
	p.Checkpoints = c.Checkpoints
	return p, transport, nil
}

// runPipeline runs p and releases its transport afterwards.
func (c *Correlator) runPipeline(ctx context.Context, p *indexer.Pipeline, transport chain.Transport) {
	defer func() {
		if closer, ok := transport.(interface{ Close() }); ok {
			closer.Close()
		}
	}()
	err := p.Run(ctx)
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("pipeline ended with error", zap.String("chain", p.URL().String()), zap.Error(err))
	}
}

// drain discards inclusions until the parent closes the channel.
func drain(ch <-chan indexer.Inclusion) {
	for range ch {
	}
}
