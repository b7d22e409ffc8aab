package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"paraScope/internal/decoder"
)

// Success grades an event for display.
type Success uint8

const (
	Happy Success = iota
	Worried
	Sad
)

func (s Success) String() string {
	switch s {
	case Happy:
		return "happy"
	case Worried:
		return "worried"
	case Sad:
		return "sad"
	}
	return fmt.Sprintf("success(%d)", uint8(s))
}

func (s Success) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventSuccess grades an event by pallet and variant name.
func EventSuccess(pallet, variant string) Success {
	if pallet == "System" && variant == "ExtrinsicFailed" {
		return Sad
	}
	if strings.Contains(variant, "Failed") || strings.Contains(variant, "Error") {
		return Worried
	}
	return Happy
}

// ChainInfo is the payload of a NewChain record.
type ChainInfo struct {
	URL      DotUrl  `json:"url"`
	Name     string  `json:"name,omitempty"`
	Endpoint string  `json:"endpoint"`
	ParaID   *uint32 `json:"para_id,omitempty"`
}

// ExtrinsicDetails carries envelope data not needed for correlation.
type ExtrinsicDetails struct {
	Hash   common.Hash `json:"hash"`
	Signed bool        `json:"signed"`
	Failed bool        `json:"failed"`
}

// Extrinsic is one decoded call of a block.
type Extrinsic struct {
	URL        DotUrl           `json:"url"`
	Pallet     string           `json:"pallet"`
	Variant    string           `json:"variant"`
	Args       decoder.Value    `json:"args"`
	Raw        hexutil.Bytes    `json:"raw"`
	StartLinks []Link           `json:"start_links,omitempty"`
	EndLinks   []Link           `json:"end_links,omitempty"`
	Details    ExtrinsicDetails `json:"details"`
}

// EventDetails carries the record envelope of an event.
type EventDetails struct {
	Phase  string        `json:"phase"`
	Topics []common.Hash `json:"topics,omitempty"`
	Raw    hexutil.Bytes `json:"raw"`
}

// Event is one decoded event of a block.
type Event struct {
	URL             DotUrl        `json:"url"`
	Pallet          string        `json:"pallet"`
	Variant         string        `json:"variant"`
	Fields          decoder.Value `json:"fields"`
	StartLinks      []Link        `json:"start_links,omitempty"`
	EndLinks        []Link        `json:"end_links,omitempty"`
	ParentExtrinsic *uint32       `json:"parent_extrinsic,omitempty"`
	Success         Success       `json:"success"`
	Details         EventDetails  `json:"details"`
}

// Block is the payload of a NewBlock record. Timestamps are milliseconds.
type Block struct {
	URL             DotUrl        `json:"url"`
	Hash            common.Hash   `json:"hash"`
	Timestamp       *uint64       `json:"timestamp,omitempty"`
	ParentTimestamp *uint64       `json:"parent_timestamp,omitempty"`
	Extrinsics      []Extrinsic   `json:"extrinsics"`
	Events          []Event       `json:"events"`
	Errors          []DecodeError `json:"errors,omitempty"`
}

type RecordKind string

const (
	KindNewChain RecordKind = "new_chain"
	KindNewBlock RecordKind = "new_block"
)

// Record is one entry of the merged output stream. Exactly one of Chain and
// Block is set, matching Kind.
type Record struct {
	Kind  RecordKind `json:"kind"`
	Epoch uint64     `json:"epoch"`
	Chain *ChainInfo `json:"chain,omitempty"`
	Block *Block     `json:"block,omitempty"`
}

func NewChain(epoch uint64, info ChainInfo) Record {
	return Record{Kind: KindNewChain, Epoch: epoch, Chain: &info}
}

func NewBlock(epoch uint64, b *Block) Record {
	return Record{Kind: KindNewBlock, Epoch: epoch, Block: b}
}

// URL returns the address of the record's chain or block.
func (r Record) URL() DotUrl {
	if r.Chain != nil {
		return r.Chain.URL
	}
	if r.Block != nil {
		return r.Block.URL
	}
	return DotUrl{}
}
