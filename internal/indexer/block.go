package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"paraScope/internal/chain"
	"paraScope/internal/decoder"
	"paraScope/internal/format"
	"paraScope/internal/model"
	"paraScope/internal/registry"
)

// undecodableError marks a block that is skipped as a whole.
type undecodableError struct {
	kind string
	err  error
}

func (e *undecodableError) Error() string { return e.kind + ": " + e.err.Error() }
func (e *undecodableError) Unwrap() error { return e.err }

type decodedExtrinsic struct {
	index uint32
	x     *format.Extrinsic
}

type decodedBlock struct {
	hash       common.Hash
	header     format.Header
	md         *registry.Metadata
	extrinsics []decodedExtrinsic
	timestamp  *uint64
	errors     []model.DecodeError
}

func (d *decodedBlock) number() uint32 {
	return uint32(d.header.Number)
}

// decodeBody fetches a block and decodes its extrinsics. Extrinsics that fail
// to decode are recorded and skipped; a payload that makes no progress is
// fatal.
func (p *Pipeline) decodeBody(ctx context.Context, hash []byte) (*decodedBlock, error) {
	data, err := p.fetch(ctx, "block", func(ctx context.Context) ([]byte, error) {
		return p.transport.Block(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("block %x: %w", hash, chain.ErrRangeLost)
	}
	blk, err := format.DecodeBlock(data)
	if err != nil {
		return nil, &undecodableError{kind: model.DecodeErrorBlock, err: err}
	}
	md, err := p.metadataAt(ctx, hash)
	if err != nil {
		if errors.Is(err, errBadMetadata) {
			return nil, &undecodableError{kind: model.DecodeErrorMetadata, err: err}
		}
		return nil, err
	}

	d := &decodedBlock{hash: blk.Header.Hash(), header: blk.Header, md: md}
	url := p.url.WithBlock(d.number())
	for i, raw := range blk.Extrinsics {
		x, err := format.DecodeExtrinsic(md, raw)
		if err != nil {
			if errors.Is(err, decoder.ErrCorruptPayload) {
				return nil, fmt.Errorf("extrinsic %d of block %d: %w", i, d.number(), err)
			}
			d.errors = append(d.errors, model.DecodeError{
				URL:   url.WithExtrinsic(uint32(i)),
				Kind:  model.DecodeErrorExtrinsic,
				Error: err.Error(),
				Raw:   raw,
			})
			continue
		}
		if d.timestamp == nil && x.Pallet == "Timestamp" && x.Call == "set" {
			if now, ok := x.Args.Get("now"); ok {
				if ms, ok := now.Uint64(); ok {
					d.timestamp = &ms
				}
			}
		}
		d.extrinsics = append(d.extrinsics, decodedExtrinsic{index: uint32(i), x: x})
	}
	return d, nil
}

// block decodes, publishes and, on a parent, forwards the inclusions of one
// block. inc is set when a parent named the block.
func (p *Pipeline) block(ctx context.Context, hash []byte, inc *Inclusion) error {
	began := time.Now()
	d, err := p.decodeBody(ctx, hash)
	if err != nil {
		var ue *undecodableError
		if errors.As(err, &ue) {
			p.logger.Warn("block skipped", zap.String("hash", common.Bytes2Hex(hash)), zap.String("kind", ue.kind), zap.Error(ue.err))
			p.Hooks.DecodeError(p.url.String(), ue.kind)
			return nil
		}
		return err
	}
	number := d.number()
	if inc != nil && d.hash != inc.Head {
		p.logger.Warn("included head mismatch", zap.Uint32("block", number), zap.String("want", inc.Head.Hex()), zap.String("got", d.hash.Hex()))
		p.Hooks.DecodeError(p.url.String(), model.DecodeErrorBlock)
		return nil
	}
	if p.last != nil && number <= *p.last {
		p.logger.Debug("block already emitted", zap.Uint32("block", number))
		return nil
	}

	b := &model.Block{
		URL:       p.url.WithBlock(number),
		Hash:      d.hash,
		Timestamp: d.timestamp,
		Errors:    d.errors,
	}
	if inc != nil {
		b.ParentTimestamp = inc.ParentTimestamp
	}
	for _, de := range d.extrinsics {
		b.Extrinsics = append(b.Extrinsics, model.Extrinsic{
			URL:     b.URL.WithExtrinsic(de.index),
			Pallet:  de.x.Pallet,
			Variant: de.x.Call,
			Args:    de.x.Args,
			Raw:     de.x.Raw,
			Details: model.ExtrinsicDetails{
				Hash:   blake2b.Sum256(de.x.Raw),
				Signed: de.x.Signed,
			},
		})
	}

	inclusions, err := p.events(ctx, d, b)
	if err != nil {
		return err
	}
	for _, e := range b.Errors {
		p.logger.Warn("decode failed", zap.String("url", e.URL.String()), zap.String("kind", e.Kind), zap.String("error", e.Error))
		p.Hooks.DecodeError(p.url.String(), e.Kind)
	}
	if p.Annotator != nil {
		p.Annotator.Annotate(d.md, b)
	}

	if p.pacer != nil {
		if err := p.pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return p.interrupted(ctx)
			}
			return err
		}
	}
	if err := p.publish(ctx, model.NewBlock(p.guard.Epoch(), b)); err != nil {
		return err
	}
	p.last = &number
	p.Hooks.BlockEmitted(p.url.String(), time.Since(began))
	p.logger.Debug("block emitted", zap.Uint32("block", number), zap.Int("extrinsics", len(b.Extrinsics)), zap.Int("events", len(b.Events)))

	if p.Checkpoints != nil {
		if err := p.Checkpoints.Save(ctx, p.url.String(), number); err != nil {
			p.logger.Warn("save checkpoint failed", zap.Error(err))
		}
	}
	return p.forward(ctx, inclusions)
}

// events decodes the block's event list into b and collects the inclusions
// a parent must forward.
func (p *Pipeline) events(ctx context.Context, d *decodedBlock, b *model.Block) ([]Inclusion, error) {
	raw, err := p.fetch(ctx, "events", func(ctx context.Context) ([]byte, error) {
		return p.transport.Storage(ctx, chain.KeySystemEvents, d.hash[:])
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	evs, err := format.DecodeEvents(d.md, raw)
	if err != nil {
		if errors.Is(err, decoder.ErrCorruptPayload) {
			return nil, fmt.Errorf("events of block %d: %w", d.number(), err)
		}
		b.Errors = append(b.Errors, model.DecodeError{URL: b.URL, Kind: model.DecodeErrorEvents, Error: err.Error(), Raw: raw})
		return nil, nil
	}
	if evs.Trailing > 0 {
		p.logger.Warn("events trailing bytes ignored", zap.Uint32("block", d.number()), zap.Int("bytes", evs.Trailing))
	}

	slot := make(map[uint32]int, len(b.Extrinsics))
	for i := range b.Extrinsics {
		slot[*b.Extrinsics[i].URL.Extrinsic] = i
	}

	var inclusions []Inclusion
	for i, r := range evs.Records {
		var parent *uint32
		if r.Phase.Kind == format.PhaseApplyExtrinsic {
			idx := r.Phase.Extrinsic
			parent = &idx
		}
		b.Events = append(b.Events, model.Event{
			URL:             b.URL.WithEvent(parent, uint32(i)),
			Pallet:          r.Pallet,
			Variant:         r.Variant,
			Fields:          r.Fields,
			ParentExtrinsic: parent,
			Success:         model.EventSuccess(r.Pallet, r.Variant),
			Details: model.EventDetails{
				Phase:  r.Phase.Kind.String(),
				Topics: r.Topics,
				Raw:    r.Raw,
			},
		})
		if parent != nil && r.Pallet == "System" && r.Variant == "ExtrinsicFailed" {
			if s, ok := slot[*parent]; ok {
				b.Extrinsics[s].Details.Failed = true
			}
		}
		if p.paraID == nil && r.Pallet == "ParaInclusion" && r.Variant == "CandidateIncluded" {
			inc, ok := candidateIncluded(&r.Fields)
			if !ok {
				p.logger.Warn("candidate included without para head", zap.Uint32("block", d.number()), zap.Int("event", i))
				continue
			}
			inc.ParentBlock = d.number()
			inc.ParentTimestamp = d.timestamp
			inclusions = append(inclusions, inc)
		}
	}
	return inclusions, nil
}

// candidateIncluded reads the para id and head hash from the candidate
// receipt descriptor.
func candidateIncluded(fields *decoder.Value) (Inclusion, bool) {
	flat := decoder.FlattenMap(fields)
	para, ok := flat["0.descriptor.para_id.0"]
	if !ok {
		return Inclusion{}, false
	}
	id, ok := para.Uint64()
	if !ok {
		return Inclusion{}, false
	}
	head, ok := flat["0.descriptor.para_head.0"]
	if !ok {
		return Inclusion{}, false
	}
	raw, ok := head.Raw()
	if !ok || len(raw) != common.HashLength {
		return Inclusion{}, false
	}
	return Inclusion{ParaID: uint32(id), Head: common.BytesToHash(raw)}, true
}

// forward hands inclusions to child pipelines after their parent block was
// published.
func (p *Pipeline) forward(ctx context.Context, inclusions []Inclusion) error {
	for _, inc := range inclusions {
		ch, ok := p.Children[inc.ParaID]
		if !ok {
			continue
		}
		select {
		case ch <- inc:
			p.Hooks.InclusionForwarded(p.url.String())
		case <-ctx.Done():
			return p.interrupted(ctx)
		}
		if err := p.guard.Check(); err != nil {
			return err
		}
	}
	return nil
}
