package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidDotUrl = errors.New("invalid dot url")

// Environments accepted in a DotUrl.
var Envs = []string{"polkadot", "kusama", "westend", "rococo", "local"}

// DotUrl locates a chain, block, extrinsic or event. Unset components are
// nil; the textual form is {env}:/{sovereign}/{para_id}/{block}/{extrinsic}/{event}
// with empty segments for unset components.
type DotUrl struct {
	Env       string
	Sovereign *uint32
	ParaID    *uint32
	Block     *uint32
	Extrinsic *uint32
	Event     *uint32
}

func u32(v uint32) *uint32 { return &v }

// ChainUrl addresses a sovereign chain or one of its children.
func ChainUrl(env string, sovereign uint32, paraID *uint32) DotUrl {
	u := DotUrl{Env: env, Sovereign: u32(sovereign)}
	if paraID != nil {
		u.ParaID = u32(*paraID)
	}
	return u
}

func ParseDotUrl(s string) (DotUrl, error) {
	env, rest, ok := strings.Cut(s, ":/")
	if !ok {
		return DotUrl{}, fmt.Errorf("%q has no env separator: %w", s, ErrInvalidDotUrl)
	}
	u := DotUrl{Env: env}
	segs := strings.Split(rest, "/")
	if len(segs) > 5 {
		return DotUrl{}, fmt.Errorf("%q has %d segments: %w", s, len(segs), ErrInvalidDotUrl)
	}
	slots := []**uint32{&u.Sovereign, &u.ParaID, &u.Block, &u.Extrinsic, &u.Event}
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		v, err := strconv.ParseUint(seg, 10, 32)
		if err != nil {
			return DotUrl{}, fmt.Errorf("%q segment %d: %w", s, i, ErrInvalidDotUrl)
		}
		*slots[i] = u32(uint32(v))
	}
	if err := u.Validate(); err != nil {
		return DotUrl{}, err
	}
	return u, nil
}

// Validate checks the component dependencies of the address.
func (u DotUrl) Validate() error {
	known := false
	for _, e := range Envs {
		if e == u.Env {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("env %q: %w", u.Env, ErrInvalidDotUrl)
	}
	if u.ParaID != nil && *u.ParaID == 0 {
		return fmt.Errorf("para id 0: %w", ErrInvalidDotUrl)
	}
	if u.Extrinsic != nil && u.Block == nil {
		return fmt.Errorf("extrinsic without block: %w", ErrInvalidDotUrl)
	}
	if u.Event != nil && u.Block == nil {
		return fmt.Errorf("event without block: %w", ErrInvalidDotUrl)
	}
	return nil
}

func (u DotUrl) String() string {
	var b strings.Builder
	b.WriteString(u.Env)
	b.WriteString(":")
	for _, p := range []*uint32{u.Sovereign, u.ParaID, u.Block, u.Extrinsic, u.Event} {
		b.WriteByte('/')
		if p != nil {
			b.WriteString(strconv.FormatUint(uint64(*p), 10))
		}
	}
	return b.String()
}

func (u DotUrl) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *DotUrl) UnmarshalText(text []byte) error {
	v, err := ParseDotUrl(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// IsChild reports whether the address names a parachain.
func (u DotUrl) IsChild() bool {
	return u.ParaID != nil
}

// SameSovereign reports whether both addresses share env and sovereign.
func (u DotUrl) SameSovereign(o DotUrl) bool {
	return u.Env == o.Env && eq(u.Sovereign, o.Sovereign)
}

// Chain strips block, extrinsic and event components.
func (u DotUrl) Chain() DotUrl {
	return DotUrl{Env: u.Env, Sovereign: u.Sovereign, ParaID: u.ParaID}
}

func (u DotUrl) WithBlock(n uint32) DotUrl {
	c := u.Chain()
	c.Block = u32(n)
	return c
}

func (u DotUrl) WithExtrinsic(i uint32) DotUrl {
	c := u
	c.Extrinsic = u32(i)
	c.Event = nil
	return c
}

// WithEvent adds an event index. parent is the owning extrinsic, nil for
// block-level events.
func (u DotUrl) WithEvent(parent *uint32, i uint32) DotUrl {
	c := u
	c.Extrinsic = nil
	if parent != nil {
		c.Extrinsic = u32(*parent)
	}
	c.Event = u32(i)
	return c
}

func eq(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
