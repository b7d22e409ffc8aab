package model

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// LinkKind names the flow a link belongs to.
type LinkKind uint8

const (
	Teleport LinkKind = iota
	ReserveTransfer
	ReserveTransferMintDerivative
	ParaInclusion
)

func (k LinkKind) String() string {
	switch k {
	case Teleport:
		return "teleport"
	case ReserveTransfer:
		return "reserve_transfer"
	case ReserveTransferMintDerivative:
		return "reserve_transfer_mint_derivative"
	case ParaInclusion:
		return "para_inclusion"
	}
	return fmt.Sprintf("link(%d)", uint8(k))
}

func (k LinkKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Link joins a start record to an end record sharing the same key.
type Link struct {
	Key  string   `json:"key"`
	Kind LinkKind `json:"kind"`
}

// LinkKey builds "{block}-{xxhash64(hex(beneficiary))}".
func LinkKey(block uint32, beneficiary []byte) string {
	return strconv.FormatUint(uint64(block), 10) + "-" +
		strconv.FormatUint(xxhash.Sum64String(common.Bytes2Hex(beneficiary)), 10)
}

// InclusionKey joins a parent's inclusion event to the child block whose
// header hashes to head.
func InclusionKey(head common.Hash) string {
	return "incl-" + common.Bytes2Hex(head[:])
}
