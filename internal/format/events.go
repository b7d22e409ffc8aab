package format

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"paraScope/internal/decoder"
	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

type PhaseKind uint8

const (
	PhaseApplyExtrinsic PhaseKind = iota
	PhaseFinalization
	PhaseInitialization
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseApplyExtrinsic:
		return "ApplyExtrinsic"
	case PhaseFinalization:
		return "Finalization"
	case PhaseInitialization:
		return "Initialization"
	}
	return fmt.Sprintf("phase(%d)", uint8(k))
}

// Phase places an event in its block. Extrinsic is meaningful only for
// PhaseApplyExtrinsic.
type Phase struct {
	Kind      PhaseKind
	Extrinsic uint32
}

type EventRecord struct {
	Phase   Phase
	Pallet  string
	Variant string
	// Fields is the field object of the selected event variant.
	Fields decoder.Value
	Value  decoder.Value
	Topics []common.Hash
	// Raw borrows the bytes of the whole (phase, event, topics) record.
	Raw []byte
}

// Events is a decoded event list. Trailing counts input bytes left after the
// announced number of records.
type Events struct {
	Records  []EventRecord
	Trailing int
}

// DecodeEvents decodes the System.Events storage value.
func DecodeEvents(md *registry.Metadata, data []byte) (*Events, error) {
	eventID, err := md.Registry.EventRoot()
	if err != nil {
		return nil, err
	}
	c := scale.NewCursor(data)
	n, err := c.ReadCompactU64()
	if err != nil {
		return nil, fmt.Errorf("event count: %w", err)
	}
	if n > uint64(c.Len()) {
		return nil, fmt.Errorf("%d events, %d bytes left: %w", n, c.Len(), scale.ErrEndOfInput)
	}

	out := &Events{Records: make([]EventRecord, 0, n)}
	for i := uint64(0); i < n; i++ {
		rec, err := decodeEventRecord(md.Registry, eventID, c)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out.Records = append(out.Records, rec)
	}
	out.Trailing = c.Len()
	return out, nil
}

func decodeEventRecord(reg *registry.Registry, eventID uint32, c *scale.Cursor) (EventRecord, error) {
	start := c.Remaining()
	var rec EventRecord

	tag, err := c.ReadU8()
	if err != nil {
		return rec, fmt.Errorf("phase: %w", err)
	}
	switch PhaseKind(tag) {
	case PhaseApplyExtrinsic:
		if rec.Phase.Extrinsic, err = c.ReadU32(); err != nil {
			return rec, fmt.Errorf("phase index: %w", err)
		}
	case PhaseFinalization, PhaseInitialization:
	default:
		return rec, fmt.Errorf("phase %d: %w", tag, decoder.ErrUnknownVariant)
	}
	rec.Phase.Kind = PhaseKind(tag)

	if rec.Value, err = decoder.Decode(reg, eventID, c); err != nil {
		return rec, fmt.Errorf("decode event: %w", err)
	}
	var ok bool
	rec.Pallet, rec.Variant, rec.Fields, ok = SplitCall(&rec.Value)
	if !ok {
		return rec, fmt.Errorf("event is not a pallet/variant pair: %w", scale.ErrInvalidEncoding)
	}

	topics, err := c.ReadCompactU64()
	if err != nil {
		return rec, fmt.Errorf("topic count: %w", err)
	}
	if topics > uint64(c.Len()/common.HashLength) {
		return rec, fmt.Errorf("%d topics, %d bytes left: %w", topics, c.Len(), scale.ErrEndOfInput)
	}
	for j := uint64(0); j < topics; j++ {
		h, err := readHash(c)
		if err != nil {
			return rec, err
		}
		rec.Topics = append(rec.Topics, h)
	}
	rec.Raw = start[:len(start)-c.Len()]
	return rec, nil
}
