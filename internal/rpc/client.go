package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"lecca.io/oasys-watchtower/internal/logger"
)

// ErrNoData is returned when the node answers with null or an empty "0x" payload.
var ErrNoData = errors.New("rpc returned no data")

func sanitizeRPCError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.Contains(msg, "<html") || strings.Contains(msg, "<HTML") {
		// Keep the status line before HTML payload, if present
		if idx := strings.Index(strings.ToLower(msg), "<html"); idx > 0 {
			return strings.TrimSpace(msg[:idx])
		}
		return "HTTP error response"
	}
	return msg
}

// Block is the subset of a block header the pipeline needs.
type Block struct {
	Number    uint64
	Hash      common.Hash
	Miner     common.Address
	Timestamp time.Time
}

type rpcBlock struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Miner     common.Address `json:"miner"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Client is a thin JSON-RPC client over HTTP. It never retries.
type Client struct {
	raw      *gethrpc.Client
	endpoint string
}

// Dial builds a client for endpoint. The timeout bounds every request.
func Dial(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("rpc endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	raw, err := gethrpc.DialHTTPWithClient(endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %s", endpoint, sanitizeRPCError(err))
	}
	return &Client{raw: raw, endpoint: endpoint}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Close() {
	c.raw.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.raw.CallContext(ctx, result, method, args...); err != nil {
		logger.Debug("RPC", "%s failed: %s", method, sanitizeRPCError(err))
		return fmt.Errorf("%s: %s", method, sanitizeRPCError(err))
	}
	return nil
}

// CallContract performs eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out *hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", callArgs{To: to, Data: data}, "latest"); err != nil {
		return nil, err
	}
	if out == nil || len(*out) == 0 {
		return nil, fmt.Errorf("eth_call %s: %w", to.Hex(), ErrNoData)
	}
	return *out, nil
}

// BlockNumber returns the current head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// BlockByNumber fetches a header without transactions.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var out *rpcBlock
	if err := c.call(ctx, &out, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrNoData)
	}
	return &Block{
		Number:    uint64(out.Number),
		Hash:      out.Hash,
		Miner:     out.Miner,
		Timestamp: time.Unix(int64(out.Timestamp), 0).UTC(),
	}, nil
}
