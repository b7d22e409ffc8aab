package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestDotUrlRoundTrip(t *testing.T) {
	para := uint32(2000)
	u := ChainUrl("polkadot", 0, &para).WithBlock(123).WithExtrinsic(4)
	s := u.String()
	if s != "polkadot:/0/2000/123/4/" {
		t.Fatalf("string %q", s)
	}
	back, err := ParseDotUrl(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back.String() != s || *back.Block != 123 || back.Event != nil {
		t.Fatalf("round trip %q", back.String())
	}

	ev := u.WithEvent(nil, 9)
	if ev.Extrinsic != nil || *ev.Event != 9 {
		t.Fatalf("system event keeps extrinsic: %s", ev)
	}
}

func TestParseDotUrlShortForms(t *testing.T) {
	u, err := ParseDotUrl("kusama:/1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *u.Sovereign != 1 || u.ParaID != nil || u.Block != nil {
		t.Fatalf("parsed %+v", u)
	}
	u, err = ParseDotUrl("polkadot:/0//10000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.IsChild() || *u.Block != 10000000 {
		t.Fatalf("parsed %+v", u)
	}
}

func TestParseDotUrlInvalid(t *testing.T) {
	for _, s := range []string{
		"polkadot/0",
		"mars:/0",
		"polkadot:/0/0",
		"polkadot:/0/1000//3",
		"polkadot:/0/1000/x",
		"polkadot:/0/1/2/3/4/5",
	} {
		if _, err := ParseDotUrl(s); !errors.Is(err, ErrInvalidDotUrl) {
			t.Fatalf("%q: expected invalid dot url, got %v", s, err)
		}
	}
}

func TestLinkKey(t *testing.T) {
	id := make([]byte, 32)
	for i := range id {
		id[i] = 0xaa
	}
	want := "10000000-" + strconv.FormatUint(xxhash.Sum64String(strings.Repeat("aa", 32)), 10)
	if got := LinkKey(10_000_000, id); got != want {
		t.Fatalf("key %q, want %q", got, want)
	}
}

func TestEventSuccess(t *testing.T) {
	if EventSuccess("System", "ExtrinsicFailed") != Sad {
		t.Fatalf("failed extrinsic must be sad")
	}
	if EventSuccess("XcmPallet", "ExecutionError") != Worried {
		t.Fatalf("error variant must be worried")
	}
	if EventSuccess("Balances", "Transfer") != Happy {
		t.Fatalf("transfer must be happy")
	}
}

func TestRecordJSON(t *testing.T) {
	rec := NewChain(3, ChainInfo{URL: ChainUrl("polkadot", 0, nil), Endpoint: "wss://rpc"})
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["kind"] != "new_chain" || out["epoch"].(float64) != 3 {
		t.Fatalf("json %s", b)
	}
	chain := out["chain"].(map[string]any)
	if chain["url"] != "polkadot:/0////" {
		t.Fatalf("url %v", chain["url"])
	}
}
