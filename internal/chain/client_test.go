package chain

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"

	"paraScope/internal/format"
	"paraScope/internal/scale"
)

func testHeader() headerJSON {
	h := headerJSON{
		ParentHash:     common.HexToHash("0x11"),
		Number:         "0x989680",
		StateRoot:      common.HexToHash("0x22"),
		ExtrinsicsRoot: common.HexToHash("0x33"),
	}
	h.Digest.Logs = []string{hexutil.Encode(append([]byte{6, 'a', 'u', 'r', 'a'}, scale.AppendLengthPrefixed(nil, []byte{1})...))}
	return h
}

func TestHeaderJSONEncode(t *testing.T) {
	h := testHeader()
	raw, err := h.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := format.DecodeHeader(scale.NewCursor(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Number != 10_000_000 || got.ParentHash != h.ParentHash || len(got.Digest) != 1 {
		t.Fatalf("header %+v", got)
	}
}

type chainService struct {
	header headerJSON
	exts   []string
}

func (s *chainService) GetBlockHash(number uint32) *string {
	if number != 10_000_000 {
		return nil
	}
	h := hexutil.Encode([]byte{0xab})
	return &h
}

func (s *chainService) GetBlock(hash string) *signedBlockJSON {
	if hash != "0xab" {
		return nil
	}
	var b signedBlockJSON
	b.Block.Header = s.header
	b.Block.Extrinsics = s.exts
	return &b
}

type stateService struct{}

func (stateService) GetStorage(key string, at *string) *string {
	if at == nil {
		return nil
	}
	v := "0x"
	return &v
}

func TestClientAgainstInProcServer(t *testing.T) {
	srv := rpc.NewServer()
	defer srv.Stop()
	svc := &chainService{header: testHeader(), exts: []string{"0x0c0400ff"}}
	if err := srv.RegisterName("chain", svc); err != nil {
		t.Fatalf("register chain: %v", err)
	}
	if err := srv.RegisterName("state", stateService{}); err != nil {
		t.Fatalf("register state: %v", err)
	}
	c := newClient("inproc", rpc.DialInProc(srv), nil)
	defer c.Close()
	ctx := context.Background()

	hash, err := c.BlockHash(ctx, 10_000_000)
	if err != nil || !bytes.Equal(hash, []byte{0xab}) {
		t.Fatalf("block hash %x %v", hash, err)
	}
	if missing, err := c.BlockHash(ctx, 1); err != nil || missing != nil {
		t.Fatalf("missing hash %x %v", missing, err)
	}

	data, err := c.Block(ctx, hash)
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	blk, err := format.DecodeBlock(data)
	if err != nil {
		t.Fatalf("decode block: %v", err)
	}
	if blk.Header.Number != 10_000_000 || len(blk.Extrinsics) != 1 || blk.Extrinsics[0][0] != 0x0c {
		t.Fatalf("block %+v", blk)
	}

	if v, err := c.Storage(ctx, KeySystemEvents, nil); err != nil || v != nil {
		t.Fatalf("latest storage %x %v", v, err)
	}
	if v, err := c.Storage(ctx, KeySystemEvents, hash); err != nil || len(v) != 0 {
		t.Fatalf("empty storage %x %v", v, err)
	}
}

func TestSubscriberDeliversHashes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	header := testHeader()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil || req.Method != "chain_subscribeFinalizedHeads" {
			return
		}
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "sub-1"})
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "chain_finalizedHead",
			"params":  map[string]any{"subscription": "sub-1", "result": header},
		})
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	want, err := header.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	wantHash := format.HeaderHash(want)

	errDone := errors.New("done")
	sub := NewSubscriber(SubscriberConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	var got []byte
	err = sub.Run(context.Background(), func(hash []byte) error {
		got = append([]byte{}, hash...)
		return errDone
	})
	if !errors.Is(err, errDone) {
		t.Fatalf("run: %v", err)
	}
	if !bytes.Equal(got, wantHash[:]) {
		t.Fatalf("hash %x, want %x", got, wantHash)
	}
}
