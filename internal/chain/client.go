package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// HeadReader reports which chain a client talks to and its tip.
type HeadReader interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Head pins reads to one block of one chain.
type Head struct {
	ChainID *big.Int
	Number  uint64
}

// Block returns the head number in the form eth_call expects.
func (h Head) Block() *big.Int {
	return new(big.Int).SetUint64(h.Number)
}

// ReadHead fetches the chain ID and the latest block number.
func ReadHead(ctx context.Context, r HeadReader) (Head, error) {
	if r == nil {
		return Head{}, fmt.Errorf("chain client is nil")
	}
	id, err := r.GetChainID(ctx)
	if err != nil {
		return Head{}, fmt.Errorf("chain id: %w", err)
	}
	number, err := r.LatestBlockNumber(ctx)
	if err != nil {
		return Head{}, fmt.Errorf("block number: %w", err)
	}
	return Head{ChainID: id, Number: number}, nil
}
