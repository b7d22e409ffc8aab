package registrytest

import (
	"fmt"

	"paraScope/internal/registry"
)

// Pallet indices of the fixture runtime.
const (
	SystemIndex          = 0
	ParachainSystemIndex = 1
	TimestampIndex       = 3
	UtilityIndex         = 26
	ParaInclusionIndex   = 53
	XcmPalletIndex       = 99
)

// SignedExtensionNames is the extension order of the fixture runtime.
var SignedExtensionNames = []string{
	"CheckSpecVersion",
	"CheckTxVersion",
	"CheckGenesis",
	"CheckMortality",
	"CheckNonce",
	"CheckWeight",
	"ChargeTransactionPayment",
}

// Runtime is a small but structurally faithful runtime: relay inclusion
// events, parachain inherents, xcm v0/v1/v2 and batch calls in one registry.
type Runtime struct {
	Metadata *registry.Metadata
	Bytes    []byte

	U8, U32, U64 uint32
	Bytes8       uint32
	AccountId32  uint32
	H256         uint32
	Call         uint32
	Event        uint32
	EventRecords uint32
	VersionedXcm uint32
	Extrinsic    uint32
}

func NewRuntime() *Runtime {
	b := NewBuilder()
	rt := &Runtime{}

	u8 := b.Prim(registry.PrimU8)
	u32 := b.Prim(registry.PrimU32)
	u64 := b.Prim(registry.PrimU64)
	u128 := b.Prim(registry.PrimU128)
	rt.U8, rt.U32, rt.U64 = u8, u32, u64

	unit := b.Tuple()
	bytes := b.Sequence(u8)
	rt.Bytes8 = bytes
	arr32 := b.Array(32, u8)
	arr64 := b.Array(64, u8)
	arr65 := b.Array(65, u8)
	compactU32 := b.Compact(u32)
	compactU64 := b.Compact(u64)
	compactU128 := b.Compact(u128)

	accountID := b.Composite(Path("sp_core", "crypto", "AccountId32"), U(arr32))
	h256 := b.Composite(Path("primitive_types", "H256"), U(arr32))
	rt.AccountId32, rt.H256 = accountID, h256
	paraID := b.Composite(Path("polkadot_parachain", "primitives", "Id"), U(u32))
	headData := b.Composite(Path("polkadot_parachain", "primitives", "HeadData"), U(bytes))

	// xcm v0
	networkID := b.Variant(Path("xcm", "v0", "junction", "NetworkId"), V("Any", 0))
	junctionV0 := b.Variant(Path("xcm", "v0", "junction", "Junction"),
		V("Parent", 0),
		V("Parachain", 1, U(compactU32)),
		V("AccountId32", 2, F("network", networkID), F("id", arr32)),
	)
	locationV0 := b.Variant(Path("xcm", "v0", "multi_location", "MultiLocation"),
		V("Null", 0),
		V("X1", 1, U(junctionV0)),
	)
	orderV0 := b.Variant(Path("xcm", "v0", "order", "Order"),
		V("Null", 0),
		V("DepositAsset", 1, F("beneficiary", locationV0)),
	)
	xcmV0 := b.Variant(Path("xcm", "v0", "Xcm"),
		V("WithdrawAsset", 0, F("effects", b.Sequence(orderV0))),
		V("ReserveAssetDeposit", 1, F("effects", b.Sequence(orderV0))),
		V("TeleportAsset", 2, F("effects", b.Sequence(orderV0))),
	)

	// xcm v1, reused by v2
	junction := b.Variant(Path("xcm", "v1", "junction", "Junction"),
		V("Parachain", 0, U(compactU32)),
		V("AccountId32", 1, F("network", networkID), F("id", arr32)),
	)
	junctions := b.Variant(Path("xcm", "v1", "multilocation", "Junctions"),
		V("Here", 0),
		V("X1", 1, U(junction)),
	)
	location := b.Composite(Path("xcm", "v1", "multilocation", "MultiLocation"),
		F("parents", u8), F("interior", junctions))
	assetID := b.Variant(Path("xcm", "v1", "multiasset", "AssetId"), V("Concrete", 0, U(location)))
	fungibility := b.Variant(Path("xcm", "v1", "multiasset", "Fungibility"), V("Fungible", 0, U(compactU128)))
	asset := b.Composite(Path("xcm", "v1", "multiasset", "MultiAsset"), F("id", assetID), F("fun", fungibility))
	assets := b.Composite(Path("xcm", "v1", "multiasset", "MultiAssets"), U(b.Sequence(asset)))
	wild := b.Variant(Path("xcm", "v1", "multiasset", "WildMultiAsset"), V("All", 0))
	filter := b.Variant(Path("xcm", "v1", "multiasset", "MultiAssetFilter"),
		V("Definite", 0, U(assets)),
		V("Wild", 1, U(wild)),
	)
	orderV1 := b.Variant(Path("xcm", "v1", "order", "Order"),
		V("Noop", 0),
		V("DepositAsset", 1, F("assets", filter), F("max_assets", u32), F("beneficiary", location)),
	)
	xcmV1 := b.Variant(Path("xcm", "v1", "Xcm"),
		V("WithdrawAsset", 0, F("assets", assets), F("effects", b.Sequence(orderV1))),
		V("ReserveAssetDeposited", 1, F("assets", assets), F("effects", b.Sequence(orderV1))),
		V("ReceiveTeleportedAsset", 2, F("assets", assets), F("effects", b.Sequence(orderV1))),
	)
	weightLimit := b.Variant(Path("xcm", "v2", "WeightLimit"),
		V("Unlimited", 0),
		V("Limited", 1, U(compactU64)),
	)
	instruction := b.Variant(Path("xcm", "v2", "Instruction"),
		V("WithdrawAsset", 0, U(assets)),
		V("ReserveAssetDeposited", 1, U(assets)),
		V("ReceiveTeleportedAsset", 2, U(assets)),
		V("ClearOrigin", 10),
		V("BuyExecution", 13, F("fees", asset), F("weight_limit", weightLimit)),
		V("DepositAsset", 14, F("assets", filter), F("max_assets", compactU32), F("beneficiary", location)),
	)
	xcmV2 := b.Composite(Path("xcm", "v2", "Xcm"), U(b.Sequence(instruction)))
	rt.VersionedXcm = b.Variant(Path("xcm", "VersionedXcm"),
		V("V0", 0, U(xcmV0)),
		V("V1", 1, U(xcmV1)),
		V("V2", 2, U(xcmV2)),
	)
	versionedLocation := b.Variant(Path("xcm", "VersionedMultiLocation"),
		V("V0", 0, U(locationV0)),
		V("V1", 1, U(location)),
		V("V2", 2, U(location)),
	)
	versionedAssets := b.Variant(Path("xcm", "VersionedMultiAssets"),
		V("V1", 1, U(assets)),
		V("V2", 2, U(assets)),
	)

	// calls
	call := b.Reserve()
	rt.Call = call
	timestampCall := b.Variant(Path("pallet_timestamp", "pallet", "Call"),
		V("set", 0, F("now", compactU64)))
	calls := b.Sequence(call)
	utilityCall := b.Variant(Path("pallet_utility", "pallet", "Call"),
		V("batch", 0, F("calls", calls)),
		V("batch_all", 2, F("calls", calls)),
		V("force_batch", 4, F("calls", calls)),
	)
	xcmCall := b.Variant(Path("pallet_xcm", "pallet", "Call"),
		V("send", 0, F("dest", versionedLocation), F("message", rt.VersionedXcm)),
		V("reserve_transfer_assets", 2,
			F("dest", versionedLocation), F("beneficiary", versionedLocation),
			F("assets", versionedAssets), F("fee_asset_item", u32)),
		V("limited_teleport_assets", 9,
			F("dest", versionedLocation), F("beneficiary", versionedLocation),
			F("assets", versionedAssets), F("fee_asset_item", u32), F("weight_limit", weightLimit)),
	)
	validationData := b.Composite(Path("polkadot_primitives", "v2", "PersistedValidationData"),
		F("parent_head", headData), F("relay_parent_number", u32),
		F("relay_parent_storage_root", h256), F("max_pov_size", u32))
	storageProof := b.Composite(Path("sp_trie", "storage_proof", "StorageProof"),
		F("trie_nodes", b.Sequence(bytes)))
	downward := b.Composite(Path("polkadot_core_primitives", "InboundDownwardMessage"),
		F("sent_at", u32), F("msg", bytes))
	hrmp := b.Composite(Path("polkadot_core_primitives", "InboundHrmpMessage"),
		F("sent_at", u32), F("data", bytes))
	inherent := b.Composite(Path("cumulus_primitives_parachain_inherent", "ParachainInherentData"),
		F("validation_data", validationData),
		F("relay_chain_state", storageProof),
		F("downward_messages", b.Sequence(downward)),
		F("horizontal_messages", b.Sequence(b.Tuple(paraID, b.Sequence(hrmp)))),
	)
	parachainSystemCall := b.Variant(Path("cumulus_pallet_parachain_system", "pallet", "Call"),
		V("set_validation_data", 0, F("data", inherent)))
	b.Set(call, Path("polkadot_runtime", "RuntimeCall"), registry.TypeDef{
		Kind: registry.KindVariant,
		Variants: []registry.Variant{
			V("ParachainSystem", ParachainSystemIndex, U(parachainSystemCall)),
			V("Timestamp", TimestampIndex, U(timestampCall)),
			V("Utility", UtilityIndex, U(utilityCall)),
			V("XcmPallet", XcmPalletIndex, U(xcmCall)),
		},
	})

	// events
	dispatchClass := b.Variant(Path("frame_support", "dispatch", "DispatchClass"),
		V("Normal", 0), V("Operational", 1), V("Mandatory", 2))
	pays := b.Variant(Path("frame_support", "dispatch", "Pays"), V("Yes", 0), V("No", 1))
	dispatchInfo := b.Composite(Path("frame_support", "dispatch", "DispatchInfo"),
		F("weight", u64), F("class", dispatchClass), F("pays_fee", pays))
	dispatchError := b.Variant(Path("sp_runtime", "DispatchError"),
		V("Other", 0), V("CannotLookup", 1), V("BadOrigin", 2))
	systemEvent := b.Variant(Path("frame_system", "pallet", "Event"),
		V("ExtrinsicSuccess", 0, F("dispatch_info", dispatchInfo)),
		V("ExtrinsicFailed", 1, F("dispatch_error", dispatchError), F("dispatch_info", dispatchInfo)),
	)
	descriptor := b.Composite(Path("polkadot_primitives", "v2", "CandidateDescriptor"),
		F("para_id", paraID),
		F("relay_parent", h256),
		F("collator", arr32),
		F("persisted_validation_data_hash", h256),
		F("pov_hash", h256),
		F("erasure_root", h256),
		F("signature", arr64),
		F("para_head", h256),
		F("validation_code_hash", h256),
	)
	receipt := b.Composite(Path("polkadot_primitives", "v2", "CandidateReceipt"),
		F("descriptor", descriptor), F("commitments_hash", h256))
	coreIndex := b.Composite(Path("polkadot_primitives", "v2", "CoreIndex"), U(u32))
	groupIndex := b.Composite(Path("polkadot_primitives", "v2", "GroupIndex"), U(u32))
	inclusionEvent := b.Variant(Path("polkadot_runtime_parachains", "inclusion", "pallet", "Event"),
		V("CandidateBacked", 0, U(receipt), U(headData), U(coreIndex), U(groupIndex)),
		V("CandidateIncluded", 1, U(receipt), U(headData), U(coreIndex), U(groupIndex)),
	)
	rt.Event = b.Variant(Path("polkadot_runtime", "RuntimeEvent"),
		V("System", SystemIndex, U(systemEvent)),
		V("ParaInclusion", ParaInclusionIndex, U(inclusionEvent)),
	)
	phase := b.Variant(Path("frame_system", "Phase"),
		V("ApplyExtrinsic", 0, U(u32)), V("Finalization", 1), V("Initialization", 2))
	record := b.Composite(Path("frame_system", "EventRecord"),
		F("phase", phase), F("event", rt.Event), F("topics", b.Sequence(h256)))
	rt.EventRecords = b.Sequence(record)

	// extrinsic envelope
	multiAddress := b.Variant(Path("sp_runtime", "multiaddress", "MultiAddress"),
		V("Id", 0, U(accountID)), V("Address32", 3, U(arr32)))
	multiSignature := b.Variant(Path("sp_runtime", "MultiSignature"),
		V("Ed25519", 0, U(arr64)), V("Sr25519", 1, U(arr64)), V("Ecdsa", 2, U(arr65)))
	eraVariants := []registry.Variant{V("Immortal", 0)}
	for i := 1; i < 256; i++ {
		eraVariants = append(eraVariants, V(fmt.Sprintf("Mortal%d", i), uint8(i), U(u8)))
	}
	era := b.Variant(Path("sp_runtime", "generic", "era", "Era"), eraVariants...)
	nonce := b.Composite(Path("frame_system", "extensions", "check_nonce", "CheckNonce"), U(compactU32))
	payment := b.Composite(Path("pallet_transaction_payment", "ChargeTransactionPayment"), U(compactU128))
	rt.Extrinsic = b.Add(Path("sp_runtime", "generic", "unchecked_extrinsic", "UncheckedExtrinsic"),
		registry.TypeDef{Kind: registry.KindComposite, Fields: []registry.Field{U(bytes)}},
		P("Address", multiAddress), P("Call", call), P("Signature", multiSignature), P("Extra", unit),
	)

	extras := []registry.SignedExtension{
		{Identifier: "CheckSpecVersion", Extra: unit, AdditionalSigned: u32},
		{Identifier: "CheckTxVersion", Extra: unit, AdditionalSigned: u32},
		{Identifier: "CheckGenesis", Extra: unit, AdditionalSigned: h256},
		{Identifier: "CheckMortality", Extra: era, AdditionalSigned: h256},
		{Identifier: "CheckNonce", Extra: nonce, AdditionalSigned: unit},
		{Identifier: "CheckWeight", Extra: unit, AdditionalSigned: unit},
		{Identifier: "ChargeTransactionPayment", Extra: payment, AdditionalSigned: unit},
	}

	runtimeType := b.Composite(Path("polkadot_runtime", "Runtime"))

	rt.Metadata = &registry.Metadata{
		Version:  registry.CurrentVersion,
		Registry: b.Registry(),
		Pallets: []registry.Pallet{
			{Name: "System", Index: SystemIndex, EventType: systemEvent, HasEvents: true,
				Storage: &registry.PalletStorage{Prefix: "System", Entries: []registry.StorageEntry{
					{Name: "Events", Value: rt.EventRecords, Default: []byte{0}},
				}}},
			{Name: "ParachainSystem", Index: ParachainSystemIndex, CallType: parachainSystemCall, HasCalls: true},
			{Name: "Timestamp", Index: TimestampIndex, CallType: timestampCall, HasCalls: true,
				Constants: []registry.Constant{{Name: "MinimumPeriod", TypeID: u64, Value: []byte{0x70, 0x17, 0, 0, 0, 0, 0, 0}}}},
			{Name: "Utility", Index: UtilityIndex, CallType: utilityCall, HasCalls: true},
			{Name: "ParaInclusion", Index: ParaInclusionIndex, EventType: inclusionEvent, HasEvents: true},
			{Name: "XcmPallet", Index: XcmPalletIndex, CallType: xcmCall, HasCalls: true},
		},
		Extrinsic: registry.ExtrinsicInfo{
			TypeID:           rt.Extrinsic,
			Version:          4,
			SignedExtensions: extras,
		},
		RuntimeType: runtimeType,
	}
	rt.Bytes = EncodeMetadata(rt.Metadata)
	return rt
}
