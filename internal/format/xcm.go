package format

import (
	"errors"
	"fmt"

	"paraScope/internal/decoder"
	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

var ErrUnsupportedXcmVersion = errors.New("unsupported xcm version")

// XcmPath locates the versioned message envelope in a registry.
var XcmPath = []string{"xcm", "VersionedXcm"}

// hrmpConcatenatedVersionedXcm is the XCMP format byte that precedes a run
// of versioned messages.
const hrmpConcatenatedVersionedXcm = 0

type XcmMessage struct {
	Version string
	// Instructions holds the single V0/V1 message or each V2 instruction.
	Instructions []decoder.Value
	Value        decoder.Value
	Raw          []byte
}

// DecodeXcm decodes one versioned envelope from c.
func DecodeXcm(reg *registry.Registry, c *scale.Cursor) (*XcmMessage, error) {
	id, ok := reg.FindByPath(XcmPath...)
	if !ok {
		return nil, fmt.Errorf("no xcm::VersionedXcm type: %w", registry.ErrCorruptMetadata)
	}
	start := c.Remaining()
	v, err := decoder.Decode(reg, id, c)
	if err != nil {
		return nil, fmt.Errorf("decode xcm: %w", err)
	}
	msg := &XcmMessage{Value: v, Raw: start[:len(start)-c.Len()]}

	version, fields, ok := v.Variant()
	if !ok {
		return nil, fmt.Errorf("xcm envelope is not a variant: %w", scale.ErrInvalidEncoding)
	}
	msg.Version = version
	body, ok := fields.Get("0")
	if !ok {
		return nil, fmt.Errorf("xcm %s has no body: %w", version, scale.ErrInvalidEncoding)
	}

	switch version {
	case "V0", "V1":
		msg.Instructions = []decoder.Value{*body}
	case "V2":
		// Xcm(Vec<Instruction>)
		seq, ok := body.Get("0")
		if !ok {
			return nil, fmt.Errorf("xcm V2 has no instruction list: %w", scale.ErrInvalidEncoding)
		}
		for _, f := range seq.Members() {
			msg.Instructions = append(msg.Instructions, f.Value)
		}
	default:
		return nil, fmt.Errorf("xcm %s: %w", version, ErrUnsupportedXcmVersion)
	}
	return msg, nil
}

// DecodeXcmBytes decodes a downward message payload holding one envelope.
func DecodeXcmBytes(reg *registry.Registry, data []byte) (*XcmMessage, error) {
	c := scale.NewCursor(data)
	msg, err := DecodeXcm(reg, c)
	if err != nil {
		return nil, err
	}
	if !c.Empty() {
		return nil, fmt.Errorf("xcm has %d trailing bytes: %w", c.Len(), scale.ErrInvalidEncoding)
	}
	return msg, nil
}

// DecodeHrmp decodes a horizontal message payload: a format byte followed by
// concatenated envelopes.
func DecodeHrmp(reg *registry.Registry, data []byte) ([]*XcmMessage, error) {
	c := scale.NewCursor(data)
	format, err := c.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("hrmp format: %w", err)
	}
	if format != hrmpConcatenatedVersionedXcm {
		return nil, fmt.Errorf("hrmp format %d: %w", format, ErrUnsupportedXcmVersion)
	}
	var out []*XcmMessage
	for !c.Empty() {
		msg, err := DecodeXcm(reg, c)
		if err != nil {
			return out, fmt.Errorf("hrmp message %d: %w", len(out), err)
		}
		out = append(out, msg)
	}
	return out, nil
}
