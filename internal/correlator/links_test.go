package correlator

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"

	"paraScope/internal/format"
	"paraScope/internal/model"
	"paraScope/internal/registry/registrytest"
)

var beneficiary = [32]byte{
	0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa,
	0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa,
	0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa,
	0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa,
}

func expectedKey(block uint32) string {
	hexID := string(bytes.Repeat([]byte("aa"), 32))
	return strconv.FormatUint(uint64(block), 10) + "-" + strconv.FormatUint(xxhash.Sum64String(hexID), 10)
}

// blockOf decodes calls into a block at number the way a pipeline does.
func blockOf(t *testing.T, rt *registrytest.Runtime, number uint32, calls ...[]byte) *model.Block {
	t.Helper()
	url := model.ChainUrl("polkadot", 0, nil).WithBlock(number)
	b := &model.Block{URL: url, Hash: common.Hash{0x01}}
	for i, call := range calls {
		x, err := format.DecodeExtrinsic(rt.Metadata, registrytest.Unsigned(call))
		if err != nil {
			t.Fatalf("decode extrinsic %d: %v", i, err)
		}
		b.Extrinsics = append(b.Extrinsics, model.Extrinsic{
			URL:     url.WithExtrinsic(uint32(i)),
			Pallet:  x.Pallet,
			Variant: x.Call,
			Args:    x.Args,
			Raw:     x.Raw,
		})
	}
	return b
}

func TestTeleportSendKey(t *testing.T) {
	rt := registrytest.NewRuntime()
	b := blockOf(t, rt, 10_000_000,
		registrytest.TimestampSet(1),
		registrytest.LimitedTeleport(1000, beneficiary, 5),
	)
	NewLinker(nil, nil).Annotate(rt.Metadata, b)

	if len(b.Extrinsics[0].StartLinks) != 0 {
		t.Fatalf("timestamp got links %+v", b.Extrinsics[0].StartLinks)
	}
	links := b.Extrinsics[1].StartLinks
	if len(links) != 1 {
		t.Fatalf("links %+v", links)
	}
	if links[0].Key != expectedKey(10_000_000) || links[0].Kind != model.Teleport {
		t.Fatalf("link %+v, want key %s", links[0], expectedKey(10_000_000))
	}
}

func TestReserveTransferVersions(t *testing.T) {
	rt := registrytest.NewRuntime()
	for _, version := range []uint8{0, 1, 2} {
		b := blockOf(t, rt, 77, registrytest.ReserveTransfer(version, 2000, beneficiary, 1))
		NewLinker(nil, nil).Annotate(rt.Metadata, b)
		links := b.Extrinsics[0].StartLinks
		if len(links) != 1 || links[0].Key != expectedKey(77) || links[0].Kind != model.ReserveTransfer {
			t.Fatalf("v%d links %+v", version, links)
		}
	}
}

func TestBatchedSends(t *testing.T) {
	rt := registrytest.NewRuntime()
	other := beneficiary
	other[0] = 0xbb
	batch := registrytest.Batch(2,
		registrytest.LimitedTeleport(1000, beneficiary, 1),
		registrytest.TimestampSet(3),
		registrytest.ReserveTransfer(1, 2000, other, 1),
	)
	b := blockOf(t, rt, 9, registrytest.Batch(0, batch))
	NewLinker(nil, nil).Annotate(rt.Metadata, b)

	links := b.Extrinsics[0].StartLinks
	if len(links) != 2 {
		t.Fatalf("links %+v", links)
	}
	if links[0].Key != expectedKey(9) || links[0].Kind != model.Teleport {
		t.Fatalf("first link %+v", links[0])
	}
	if links[1].Kind != model.ReserveTransfer || links[1].Key == links[0].Key {
		t.Fatalf("second link %+v", links[1])
	}
}

func TestDownwardDeliveryKey(t *testing.T) {
	rt := registrytest.NewRuntime()
	b := blockOf(t, rt, 5, registrytest.SetValidationData(10_000_001, []registrytest.Downward{
		{SentAt: 10_000_000, Msg: registrytest.XcmV1Deposit(beneficiary, 5)},
	}, nil))
	NewLinker(nil, nil).Annotate(rt.Metadata, b)

	links := b.Extrinsics[0].EndLinks
	if len(links) != 2 {
		t.Fatalf("end links %+v", links)
	}
	if links[0].Kind != model.ParaInclusion || links[0].Key != model.InclusionKey(b.Hash) {
		t.Fatalf("inclusion link %+v", links[0])
	}
	if links[1].Key != expectedKey(10_000_000) || links[1].Kind != model.ReserveTransferMintDerivative {
		t.Fatalf("delivery link %+v", links[1])
	}
}

func TestUndecodableDownwardMessageIsSkipped(t *testing.T) {
	rt := registrytest.NewRuntime()
	b := blockOf(t, rt, 5, registrytest.SetValidationData(1, []registrytest.Downward{
		{SentAt: 3, Msg: []byte{0x09, 0x09}},
		{SentAt: 4, Msg: registrytest.XcmV0Deposit(beneficiary)},
	}, nil))
	NewLinker(nil, nil).Annotate(rt.Metadata, b)

	links := b.Extrinsics[0].EndLinks
	if len(links) != 2 || links[1].Key != expectedKey(4) {
		t.Fatalf("end links %+v", links)
	}
}

func TestHorizontalDeliveryKeys(t *testing.T) {
	rt := registrytest.NewRuntime()
	data := append([]byte{0}, registrytest.XcmV1Deposit(beneficiary, 1)...)
	data = append(data, registrytest.XcmV2Deposit(beneficiary, 2)...)
	b := blockOf(t, rt, 5, registrytest.SetValidationData(1, nil, []registrytest.Horizontal{
		{Sender: 2000, SentAt: 40, Data: data},
		{Sender: 2004, SentAt: 41, Data: append([]byte{0}, registrytest.XcmV2Deposit(beneficiary, 3)...)},
	}))
	NewLinker(nil, nil).Annotate(rt.Metadata, b)

	links := b.Extrinsics[0].EndLinks
	if len(links) != 4 {
		t.Fatalf("end links %+v", links)
	}
	want := []string{expectedKey(40), expectedKey(40) + "-1", expectedKey(41)}
	for i, w := range want {
		if links[i+1].Key != w {
			t.Fatalf("link %d: %s, want %s", i+1, links[i+1].Key, w)
		}
	}
}

func TestDuplicateKeysAreSuffixed(t *testing.T) {
	rt := registrytest.NewRuntime()
	keys := NewKeyRegistry()
	linker := NewLinker(keys, nil)

	sends := blockOf(t, rt, 12,
		registrytest.LimitedTeleport(1000, beneficiary, 1),
		registrytest.LimitedTeleport(1000, beneficiary, 2),
	)
	linker.Annotate(rt.Metadata, sends)
	if got := sends.Extrinsics[1].StartLinks[0].Key; got != expectedKey(12)+"-1" {
		t.Fatalf("second send key %s", got)
	}

	// The end side counts on its own.
	deliveries := blockOf(t, rt, 3, registrytest.SetValidationData(13, []registrytest.Downward{
		{SentAt: 12, Msg: registrytest.XcmV2Deposit(beneficiary, 1)},
		{SentAt: 12, Msg: registrytest.XcmV2Deposit(beneficiary, 2)},
	}, nil))
	linker.Annotate(rt.Metadata, deliveries)
	links := deliveries.Extrinsics[0].EndLinks
	if links[1].Key != expectedKey(12) || links[2].Key != expectedKey(12)+"-1" {
		t.Fatalf("end links %+v", links)
	}
}

func TestInclusionStartLink(t *testing.T) {
	rt := registrytest.NewRuntime()
	head := []byte{1, 2, 3}
	paraHead := format.HeaderHash(head)
	events, err := format.DecodeEvents(rt.Metadata, registrytest.Events(
		registrytest.ExtrinsicSuccess(0),
		registrytest.CandidateIncluded(2000, [32]byte(paraHead), head),
	))
	if err != nil {
		t.Fatalf("decode events: %v", err)
	}
	b := blockOf(t, rt, 20, registrytest.TimestampSet(1))
	for i, r := range events.Records {
		b.Events = append(b.Events, model.Event{
			URL:     b.URL.WithEvent(nil, uint32(i)),
			Pallet:  r.Pallet,
			Variant: r.Variant,
			Fields:  r.Fields,
		})
	}
	NewLinker(nil, nil).Annotate(rt.Metadata, b)

	if len(b.Events[0].StartLinks) != 0 {
		t.Fatalf("success event got links")
	}
	links := b.Events[1].StartLinks
	if len(links) != 1 || links[0].Kind != model.ParaInclusion || links[0].Key != model.InclusionKey(paraHead) {
		t.Fatalf("inclusion links %+v", links)
	}
}

func TestKeyRegistry(t *testing.T) {
	r := NewKeyRegistry()
	for i, want := range []string{"k", "k-1", "k-2"} {
		if got := r.Start("k"); got != want {
			t.Fatalf("start %d: %s", i, got)
		}
	}
	if got := r.End("k"); got != "k" {
		t.Fatalf("end: %s", got)
	}
	if got := r.Start("other"); got != "other" {
		t.Fatalf("other: %s", got)
	}
}
