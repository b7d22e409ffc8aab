package registry_test

import (
	"errors"
	"testing"

	"paraScope/internal/registry"
	"paraScope/internal/registry/registrytest"
	"paraScope/internal/scale"
)

func TestDecodeMetadataFixture(t *testing.T) {
	rt := registrytest.NewRuntime()

	md, err := registry.DecodeMetadata(rt.Bytes)
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if md.Version != registry.CurrentVersion {
		t.Fatalf("version: %d", md.Version)
	}
	if md.Registry.Len() != rt.Metadata.Registry.Len() {
		t.Fatalf("type count %d, want %d", md.Registry.Len(), rt.Metadata.Registry.Len())
	}
	if len(md.Pallets) != len(rt.Metadata.Pallets) {
		t.Fatalf("pallet count %d", len(md.Pallets))
	}

	ts, ok := md.Pallet("Timestamp")
	if !ok || ts.Index != registrytest.TimestampIndex || !ts.HasCalls {
		t.Fatalf("timestamp pallet: %+v", ts)
	}
	if len(ts.Constants) != 1 || ts.Constants[0].Name != "MinimumPeriod" {
		t.Fatalf("timestamp constants: %+v", ts.Constants)
	}
	sys, ok := md.PalletByIndex(registrytest.SystemIndex)
	if !ok || sys.Storage == nil || sys.Storage.Entries[0].Name != "Events" {
		t.Fatalf("system pallet storage: %+v", sys)
	}

	if md.Extrinsic.Version != 4 {
		t.Fatalf("extrinsic version: %d", md.Extrinsic.Version)
	}
	if len(md.Extrinsic.SignedExtensions) != len(registrytest.SignedExtensionNames) {
		t.Fatalf("signed extensions: %d", len(md.Extrinsic.SignedExtensions))
	}
	for i, se := range md.Extrinsic.SignedExtensions {
		if se.Identifier != registrytest.SignedExtensionNames[i] {
			t.Fatalf("extension %d: %s", i, se.Identifier)
		}
	}

	ext, err := md.Registry.Resolve(md.Extrinsic.TypeID)
	if err != nil {
		t.Fatalf("resolve extrinsic: %v", err)
	}
	if call, ok := ext.Param("Call"); !ok || call != rt.Call {
		t.Fatalf("extrinsic call param: %d %v", call, ok)
	}
}

func TestDecodeMetadataOpaqueWrapper(t *testing.T) {
	rt := registrytest.NewRuntime()
	wrapped := scale.AppendLengthPrefixed(nil, rt.Bytes)
	if _, err := registry.DecodeMetadata(wrapped); err != nil {
		t.Fatalf("decode wrapped metadata: %v", err)
	}
}

func TestDecodeMetadataVersionMismatch(t *testing.T) {
	rt := registrytest.NewRuntime()
	data := append([]byte{}, rt.Bytes...)
	data[4] = 15
	if _, err := registry.DecodeMetadata(data); !errors.Is(err, registry.ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeMetadataCorrupt(t *testing.T) {
	rt := registrytest.NewRuntime()
	if _, err := registry.DecodeMetadata(rt.Bytes[:len(rt.Bytes)/2]); !errors.Is(err, registry.ErrCorruptMetadata) {
		t.Fatalf("expected corrupt metadata, got %v", err)
	}
	if _, err := registry.DecodeMetadata([]byte("nope")); !errors.Is(err, registry.ErrCorruptMetadata) {
		t.Fatalf("expected corrupt metadata for bad magic, got %v", err)
	}
}

func TestDecodeMetadataDanglingReference(t *testing.T) {
	b := registrytest.NewBuilder()
	b.Composite(registrytest.Path("a", "B"), registrytest.F("x", 42))
	md := &registry.Metadata{Version: registry.CurrentVersion, Registry: b.Registry()}
	if _, err := registry.DecodeMetadata(registrytest.EncodeMetadata(md)); !errors.Is(err, registry.ErrCorruptMetadata) {
		t.Fatalf("expected corrupt metadata, got %v", err)
	}
}

func TestResolveMissing(t *testing.T) {
	r := registrytest.NewBuilder().Registry()
	if _, err := r.Resolve(7); !errors.Is(err, registry.ErrCorruptMetadata) {
		t.Fatalf("expected corrupt metadata, got %v", err)
	}
}

func TestFindByPathFirstSeen(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	first := b.Composite(registrytest.Path("xcm", "VersionedXcm"), registrytest.U(u8))
	b.Composite(registrytest.Path("xcm", "VersionedXcm"), registrytest.U(u8))
	r := b.Registry()

	id, ok := r.FindByPath("xcm", "VersionedXcm")
	if !ok || id != first {
		t.Fatalf("find by path: %d %v", id, ok)
	}
	if _, ok := r.FindByPath("xcm"); ok {
		t.Fatalf("prefix must not match")
	}
}

func TestRuntimeRoots(t *testing.T) {
	rt := registrytest.NewRuntime()
	r := rt.Metadata.Registry

	call, err := r.CallRoot()
	if err != nil || call != rt.Call {
		t.Fatalf("call root: %d %v", call, err)
	}
	event, err := r.EventRoot()
	if err != nil || event != rt.Event {
		t.Fatalf("event root: %d %v", event, err)
	}
}

func TestRuntimeRootsLegacyNames(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	b.Composite(registrytest.Path("kusama_runtime", "Other"), registrytest.U(u8))
	ev := b.Variant(registrytest.Path("kusama_runtime", "Event"), registrytest.V("System", 0))
	call := b.Variant(registrytest.Path("kusama_runtime", "Call"), registrytest.V("System", 0))
	b.Variant(registrytest.Path("pallet", "Event"), registrytest.V("X", 0))
	r := b.Registry()

	if got, err := r.EventRoot(); err != nil || got != ev {
		t.Fatalf("legacy event root: %d %v", got, err)
	}
	if got, err := r.CallRoot(); err != nil || got != call {
		t.Fatalf("legacy call root: %d %v", got, err)
	}

	empty := registrytest.NewBuilder().Registry()
	if _, err := empty.EventRoot(); !errors.Is(err, registry.ErrCorruptMetadata) {
		t.Fatalf("expected corrupt metadata, got %v", err)
	}
}
