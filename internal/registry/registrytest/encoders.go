package registrytest

import (
	"paraScope/internal/scale"
)

// Encoders below produce payloads matching the types of NewRuntime.

// Unsigned wraps a call in a v4 unsigned, length-prefixed extrinsic.
func Unsigned(call []byte) []byte {
	return scale.AppendLengthPrefixed(nil, append([]byte{0x04}, call...))
}

func TimestampSet(ms uint64) []byte {
	return scale.AppendCompact([]byte{TimestampIndex, 0}, ms)
}

// Batch wraps calls in Utility.batch, batch_all or force_batch by call index.
func Batch(index uint8, calls ...[]byte) []byte {
	out := scale.AppendCompact([]byte{UtilityIndex, index}, uint64(len(calls)))
	for _, c := range calls {
		out = append(out, c...)
	}
	return out
}

// LocationParachain is a v1/v2 MultiLocation { parents: 0, X1(Parachain(id)) }.
func LocationParachain(id uint32) []byte {
	return scale.AppendCompact([]byte{0, 1, 0}, uint64(id))
}

// LocationAccount is a v1/v2 MultiLocation { parents: 0, X1(AccountId32) }.
func LocationAccount(id [32]byte) []byte {
	return append([]byte{0, 1, 1, 0}, id[:]...)
}

func LocationV0Parachain(id uint32) []byte {
	return scale.AppendCompact([]byte{1, 1}, uint64(id))
}

func LocationV0Account(id [32]byte) []byte {
	return append([]byte{1, 2, 0}, id[:]...)
}

// Assets is a single fungible asset of the local native token.
func Assets(amount uint64) []byte {
	out := []byte{0x04, 0, 0, 0, 0}
	return scale.AppendCompact(out, amount)
}

// Versioned prefixes a location or asset list with its version tag.
func Versioned(version uint8, body []byte) []byte {
	return append([]byte{version}, body...)
}

// LimitedTeleport is XcmPallet.limited_teleport_assets to a V2 parachain
// destination and V2 account beneficiary.
func LimitedTeleport(para uint32, beneficiary [32]byte, amount uint64) []byte {
	out := []byte{XcmPalletIndex, 9}
	out = append(out, Versioned(2, LocationParachain(para))...)
	out = append(out, Versioned(2, LocationAccount(beneficiary))...)
	out = append(out, Versioned(2, Assets(amount))...)
	out = scale.AppendU32(out, 0)
	return append(out, 0)
}

// ReserveTransfer is XcmPallet.reserve_transfer_assets with dest and
// beneficiary in the given version. Version 0 uses v0 locations.
func ReserveTransfer(version uint8, para uint32, beneficiary [32]byte, amount uint64) []byte {
	out := []byte{XcmPalletIndex, 2}
	if version == 0 {
		out = append(out, Versioned(0, LocationV0Parachain(para))...)
		out = append(out, Versioned(0, LocationV0Account(beneficiary))...)
	} else {
		out = append(out, Versioned(version, LocationParachain(para))...)
		out = append(out, Versioned(version, LocationAccount(beneficiary))...)
	}
	out = append(out, Versioned(2, Assets(amount))...)
	return scale.AppendU32(out, 0)
}

// XcmV0Deposit is VersionedXcm::V0(ReserveAssetDeposit { [DepositAsset] }).
func XcmV0Deposit(beneficiary [32]byte) []byte {
	out := []byte{0, 1, 0x04, 1}
	return append(out, LocationV0Account(beneficiary)...)
}

// XcmV1Deposit is VersionedXcm::V1(ReserveAssetDeposited { assets, [DepositAsset] }).
func XcmV1Deposit(beneficiary [32]byte, amount uint64) []byte {
	out := []byte{1, 1}
	out = append(out, Assets(amount)...)
	out = append(out, 0x04, 1, 1, 0)
	out = scale.AppendU32(out, 1)
	return append(out, LocationAccount(beneficiary)...)
}

// XcmV2Deposit is VersionedXcm::V2([ReserveAssetDeposited, ClearOrigin, DepositAsset]).
func XcmV2Deposit(beneficiary [32]byte, amount uint64) []byte {
	out := []byte{2, 0x0c, 1}
	out = append(out, Assets(amount)...)
	out = append(out, 10, 14, 1, 0, 0x04)
	return append(out, LocationAccount(beneficiary)...)
}

type Downward struct {
	SentAt uint32
	Msg    []byte
}

type Horizontal struct {
	Sender uint32
	SentAt uint32
	Data   []byte
}

// SetValidationData is ParachainSystem.set_validation_data with the given
// message queues. Horizontal messages from one sender are grouped in order.
func SetValidationData(relayParent uint32, dmp []Downward, hrmp []Horizontal) []byte {
	out := []byte{ParachainSystemIndex, 0}
	out = scale.AppendLengthPrefixed(out, []byte{0xde, 0xad})
	out = scale.AppendU32(out, relayParent)
	out = append(out, make([]byte, 32)...)
	out = scale.AppendU32(out, 5<<20)
	out = append(out, 0)

	out = scale.AppendCompact(out, uint64(len(dmp)))
	for _, m := range dmp {
		out = scale.AppendU32(out, m.SentAt)
		out = scale.AppendLengthPrefixed(out, m.Msg)
	}

	var senders []uint32
	bySender := make(map[uint32][]Horizontal)
	for _, m := range hrmp {
		if _, ok := bySender[m.Sender]; !ok {
			senders = append(senders, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], m)
	}
	out = scale.AppendCompact(out, uint64(len(senders)))
	for _, s := range senders {
		out = scale.AppendU32(out, s)
		out = scale.AppendCompact(out, uint64(len(bySender[s])))
		for _, m := range bySender[s] {
			out = scale.AppendU32(out, m.SentAt)
			out = scale.AppendLengthPrefixed(out, m.Data)
		}
	}
	return out
}

// Phase tags.
const (
	PhaseApply        = 0
	PhaseFinalization = 1
)

func phase(apply bool, idx uint32) []byte {
	if !apply {
		return []byte{PhaseFinalization}
	}
	return scale.AppendU32([]byte{PhaseApply}, idx)
}

func dispatchInfo() []byte {
	return append(scale.AppendU64(nil, 1000), 0, 0)
}

// ExtrinsicSuccess is an event record for System.ExtrinsicSuccess.
func ExtrinsicSuccess(idx uint32) []byte {
	out := append(phase(true, idx), SystemIndex, 0)
	out = append(out, dispatchInfo()...)
	return append(out, 0)
}

// ExtrinsicFailed is an event record for System.ExtrinsicFailed(BadOrigin).
func ExtrinsicFailed(idx uint32) []byte {
	out := append(phase(true, idx), SystemIndex, 1, 2)
	out = append(out, dispatchInfo()...)
	return append(out, 0)
}

// CandidateIncluded is a Finalization-phase ParaInclusion.CandidateIncluded
// record carrying one topic.
func CandidateIncluded(para uint32, paraHead [32]byte, head []byte) []byte {
	out := append(phase(false, 0), ParaInclusionIndex, 1)
	out = scale.AppendU32(out, para)
	for i := 0; i < 5; i++ {
		out = append(out, make([]byte, 32)...)
	}
	out = append(out, make([]byte, 64)...)
	out = append(out, paraHead[:]...)
	out = append(out, make([]byte, 64)...)
	out = scale.AppendLengthPrefixed(out, head)
	out = scale.AppendU32(out, 0)
	out = scale.AppendU32(out, 0)
	out = append(out, 0x04)
	return append(out, paraHead[:]...)
}

// Events joins event records into a System.Events value.
func Events(records ...[]byte) []byte {
	out := scale.AppendCompact(nil, uint64(len(records)))
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}
