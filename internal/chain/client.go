package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"paraScope/internal/format"
)

// Client wraps a go-ethereum RPC client speaking the Substrate JSON-RPC
// methods. It works over http(s) and ws(s) endpoints.
type Client struct {
	endpoint  string
	rpcClient *rpc.Client
	logger    *zap.Logger

	// PollInterval paces finalized-head polling on http endpoints.
	PollInterval time.Duration
}

var _ Transport = (*Client)(nil)

// NewClient dials the endpoint.
func NewClient(ctx context.Context, endpoint string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return newClient(endpoint, rpcClient, logger), nil
}

func newClient(endpoint string, rpcClient *rpc.Client, logger *zap.Logger) *Client {
	return &Client{
		endpoint:     endpoint,
		rpcClient:    rpcClient,
		logger:       logger,
		PollInterval: 6 * time.Second,
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// callBytes runs a method whose result is a nullable hex string.
func (c *Client) callBytes(ctx context.Context, method string, args ...any) ([]byte, error) {
	var res *string
	if err := c.rpcClient.CallContext(ctx, &res, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if res == nil {
		return nil, nil
	}
	b, err := hexutil.Decode(*res)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", method, err)
	}
	return b, nil
}

func (c *Client) BlockHash(ctx context.Context, number uint32) ([]byte, error) {
	return c.callBytes(ctx, "chain_getBlockHash", number)
}

// Block fetches a block and returns it in the format.EncodeBlock layout.
func (c *Client) Block(ctx context.Context, hash []byte) ([]byte, error) {
	var res *signedBlockJSON
	if err := c.rpcClient.CallContext(ctx, &res, "chain_getBlock", hexutil.Encode(hash)); err != nil {
		return nil, fmt.Errorf("chain_getBlock: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	header, err := res.Block.Header.encode()
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	exts := make([][]byte, 0, len(res.Block.Extrinsics))
	for i, x := range res.Block.Extrinsics {
		b, err := hexutil.Decode(x)
		if err != nil {
			return nil, fmt.Errorf("extrinsic %d: %w", i, err)
		}
		exts = append(exts, b)
	}
	return format.EncodeBlock(header, exts), nil
}

// Storage reads a storage value at a block, or at the best block when at is
// nil.
func (c *Client) Storage(ctx context.Context, key, at []byte) ([]byte, error) {
	if at == nil {
		return c.callBytes(ctx, "state_getStorage", hexutil.Encode(key))
	}
	return c.callBytes(ctx, "state_getStorage", hexutil.Encode(key), hexutil.Encode(at))
}

func (c *Client) Metadata(ctx context.Context, at []byte) ([]byte, error) {
	if at == nil {
		return c.callBytes(ctx, "state_getMetadata")
	}
	return c.callBytes(ctx, "state_getMetadata", hexutil.Encode(at))
}

func (c *Client) ChainName(ctx context.Context) (string, error) {
	var name string
	if err := c.rpcClient.CallContext(ctx, &name, "system_chain"); err != nil {
		return "", fmt.Errorf("system_chain: %w", err)
	}
	return name, nil
}

// SubscribeFinalized streams finalized block hashes into out until ctx ends.
// ws endpoints subscribe; http endpoints poll chain_getFinalizedHead.
func (c *Client) SubscribeFinalized(ctx context.Context, out chan<- []byte) error {
	if strings.HasPrefix(c.endpoint, "ws://") || strings.HasPrefix(c.endpoint, "wss://") {
		sub := NewSubscriber(SubscriberConfig{URL: c.endpoint}, c.logger)
		return sub.Run(ctx, func(hash []byte) error {
			select {
			case out <- hash:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return c.pollFinalized(ctx, out)
}

func (c *Client) FinalizedHead(ctx context.Context) ([]byte, error) {
	return c.callBytes(ctx, "chain_getFinalizedHead")
}

func (c *Client) pollFinalized(ctx context.Context, out chan<- []byte) error {
	var last []byte
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		head, err := c.FinalizedHead(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("poll finalized head failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		}
		if err == nil && head != nil && !bytes.Equal(head, last) {
			last = head
			select {
			case out <- head:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type signedBlockJSON struct {
	Block struct {
		Header     headerJSON `json:"header"`
		Extrinsics []string   `json:"extrinsics"`
	} `json:"block"`
}

type headerJSON struct {
	ParentHash     common.Hash `json:"parentHash"`
	Number         string      `json:"number"`
	StateRoot      common.Hash `json:"stateRoot"`
	ExtrinsicsRoot common.Hash `json:"extrinsicsRoot"`
	Digest         digestJSON  `json:"digest"`
}

type digestJSON struct {
	Logs []string `json:"logs"`
}

// encode rebuilds the SCALE header so its blake2b hash equals the block hash.
func (h *headerJSON) encode() ([]byte, error) {
	number, err := strconv.ParseUint(strings.TrimPrefix(h.Number, "0x"), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("number %q: %w", h.Number, err)
	}
	logs := make([][]byte, 0, len(h.Digest.Logs))
	for i, l := range h.Digest.Logs {
		b, err := hexutil.Decode(l)
		if err != nil {
			return nil, fmt.Errorf("digest log %d: %w", i, err)
		}
		logs = append(logs, b)
	}
	return format.EncodeHeader(h.ParentHash, number, h.StateRoot, h.ExtrinsicsRoot, logs), nil
}
