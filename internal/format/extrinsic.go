package format

import (
	"errors"
	"fmt"

	"paraScope/internal/decoder"
	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

var ErrUnsupportedExtrinsicVersion = errors.New("unsupported extrinsic version")

// ExtrinsicVersion is the only supported envelope version.
const ExtrinsicVersion = 4

const signedBit = 0x80

// Fixed layout used when the extrinsic type carries no address or signature
// parameters.
const (
	fixedAddressLen   = 32
	fixedSignatureLen = 64
	fixedSigKindLen   = 2
)

// Extra is the decoded "extra" value of one signed extension.
type Extra struct {
	Identifier string
	Value      decoder.Value
}

type Extrinsic struct {
	Signed  bool
	Version uint8

	Address   decoder.Value
	Signature decoder.Value
	Extras    []Extra

	Pallet string
	Call   string
	// Args is the field object of the selected call.
	Args decoder.Value
	// CallValue is the whole call tree rooted at the runtime call enum.
	CallValue decoder.Value

	// Raw is the full extrinsic including its length prefix; CallRaw is
	// the call encoding alone.
	Raw     []byte
	CallRaw []byte
}

// DecodeExtrinsic decodes one length-prefixed extrinsic against md.
func DecodeExtrinsic(md *registry.Metadata, data []byte) (*Extrinsic, error) {
	c := scale.NewCursor(data)
	body, err := c.ReadLengthPrefixed()
	if err != nil {
		return nil, fmt.Errorf("extrinsic length: %w", err)
	}
	x := &Extrinsic{Raw: data[:len(data)-c.Len()]}

	bc := scale.NewCursor(body)
	head, err := bc.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("extrinsic version: %w", err)
	}
	x.Signed = head&signedBit != 0
	x.Version = head &^ signedBit
	if x.Version != ExtrinsicVersion {
		return nil, fmt.Errorf("version %d: %w", x.Version, ErrUnsupportedExtrinsicVersion)
	}

	reg := md.Registry
	if x.Signed {
		if err := x.decodeSignature(md, bc); err != nil {
			return nil, err
		}
	}

	callID, err := callType(md)
	if err != nil {
		return nil, err
	}
	start := bc.Remaining()
	x.CallValue, err = decoder.Decode(reg, callID, bc)
	if err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	x.CallRaw = start[:len(start)-bc.Len()]
	if !bc.Empty() {
		return nil, fmt.Errorf("extrinsic has %d trailing bytes: %w", bc.Len(), scale.ErrInvalidEncoding)
	}

	var ok bool
	x.Pallet, x.Call, x.Args, ok = SplitCall(&x.CallValue)
	if !ok {
		return nil, fmt.Errorf("call is not a pallet/variant pair: %w", scale.ErrInvalidEncoding)
	}
	return x, nil
}

func (x *Extrinsic) decodeSignature(md *registry.Metadata, c *scale.Cursor) error {
	reg := md.Registry
	ext, err := reg.Resolve(md.Extrinsic.TypeID)
	if err != nil {
		return err
	}

	addrID, hasAddr := ext.Param("Address")
	sigID, hasSig := ext.Param("Signature")
	if hasAddr && hasSig {
		if x.Address, err = decoder.Decode(reg, addrID, c); err != nil {
			return fmt.Errorf("decode address: %w", err)
		}
		if x.Signature, err = decoder.Decode(reg, sigID, c); err != nil {
			return fmt.Errorf("decode signature: %w", err)
		}
	} else {
		addr, err := c.ReadBytes(fixedAddressLen)
		if err != nil {
			return fmt.Errorf("address: %w", err)
		}
		sig, err := c.ReadBytes(fixedSignatureLen + fixedSigKindLen)
		if err != nil {
			return fmt.Errorf("signature: %w", err)
		}
		x.Address = decoder.Scale(addr)
		x.Signature = decoder.Scale(sig)
	}

	x.Extras = make([]Extra, 0, len(md.Extrinsic.SignedExtensions))
	for _, se := range md.Extrinsic.SignedExtensions {
		v, err := decoder.Decode(reg, se.Extra, c)
		if err != nil {
			return fmt.Errorf("signed extension %s: %w", se.Identifier, err)
		}
		x.Extras = append(x.Extras, Extra{Identifier: se.Identifier, Value: v})
	}
	return nil
}

// callType prefers the runtime call enum and falls back to the extrinsic
// type's Call parameter.
func callType(md *registry.Metadata) (uint32, error) {
	id, err := md.Registry.CallRoot()
	if err == nil {
		return id, nil
	}
	if ext, rerr := md.Registry.Resolve(md.Extrinsic.TypeID); rerr == nil {
		if id, ok := ext.Param("Call"); ok {
			return id, nil
		}
	}
	return 0, err
}

// SplitCall unwraps a runtime call value into pallet name, call name and
// call arguments. Runtime event values have the same double-tagged shape.
func SplitCall(v *decoder.Value) (pallet, call string, args decoder.Value, ok bool) {
	pallet, outer, ok := v.Variant()
	if !ok {
		return "", "", decoder.Value{}, false
	}
	inner, ok := outer.Get("0")
	if !ok {
		return "", "", decoder.Value{}, false
	}
	call, fields, ok := inner.Variant()
	if !ok {
		return "", "", decoder.Value{}, false
	}
	return pallet, call, *fields, true
}
