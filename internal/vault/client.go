package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"

	"vaultArb/internal/model"
)

const tokenMetaCacheSize = 1024

// Client wraps go-ethereum RPC and reads weighted pool state through the
// Vault contract.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	tokenMeta *lru.Cache[common.Address, TokenMeta]
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	tokenMeta, err := lru.New[common.Address, TokenMeta](tokenMetaCacheSize)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tokenMeta: tokenMeta,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// PendingNonceAt returns the next nonce for the account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, account)
}

// SuggestGasPrice returns the suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ethClient.SuggestGasPrice(ctx)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.ethClient.SendTransaction(ctx, tx)
}

// PoolState assembles the full weighted pool state at a block height. Pass
// zero to read the latest state; Block is then filled with the head number
// the read started from.
func (c *Client) PoolState(ctx context.Context, pool common.Address, blockNumber uint64) (*model.PoolState, error) {
	poolABI, err := WeightedPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	vaultParsedABI, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}

	if blockNumber == 0 {
		head, err := c.LatestBlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest block: %w", err)
		}
		blockNumber = head
	}
	blockPtr := new(big.Int).SetUint64(blockNumber)

	values, err := c.callMethod(ctx, pool, poolABI, "getPoolId", blockPtr)
	if err != nil {
		return nil, err
	}
	poolID, err := asHash(values[0])
	if err != nil {
		return nil, fmt.Errorf("pool id: %w", err)
	}

	values, err = c.callMethod(ctx, pool, poolABI, "getVault", blockPtr)
	if err != nil {
		return nil, err
	}
	vaultAddr, err := asAddress(values[0])
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	values, err = c.callMethod(ctx, vaultAddr, vaultParsedABI, "getPoolTokens", blockPtr, poolID)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("getPoolTokens return size %d", len(values))
	}
	tokens, err := asAddressSlice(values[0])
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	balances, err := asBigIntSlice(values[1])
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}

	values, err = c.callMethod(ctx, pool, poolABI, "getNormalizedWeights", blockPtr)
	if err != nil {
		return nil, err
	}
	weights, err := asBigIntSlice(values[0])
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}

	values, err = c.callMethod(ctx, pool, poolABI, "getSwapFeePercentage", blockPtr)
	if err != nil {
		return nil, err
	}
	swapFee, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("swap fee: %w", err)
	}

	decimals := make([]uint8, len(tokens))
	for i, token := range tokens {
		meta, err := c.FetchTokenMeta(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("token %s metadata: %w", token.Hex(), err)
		}
		decimals[i] = meta.Decimals
	}

	state := &model.PoolState{
		ID:       poolID,
		Address:  pool,
		Type:     model.PoolTypeWeighted,
		Tokens:   tokens,
		Balances: balances,
		Decimals: decimals,
		Weights:  weights,
		SwapFee:  swapFee,
		Block:    blockNumber,
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.Hex(), err)
	}
	return state, nil
}

func (c *Client) callMethod(
	ctx context.Context,
	contract common.Address,
	parsed abi.ABI,
	method string,
	block *big.Int,
	args ...interface{},
) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := c.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asAddressSlice(value interface{}) ([]common.Address, error) {
	switch v := value.(type) {
	case []common.Address:
		return v, nil
	case []*common.Address:
		out := make([]common.Address, len(v))
		for i, a := range v {
			out[i] = *a
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported address slice type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asBigIntSlice(value interface{}) ([]*big.Int, error) {
	v, ok := value.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported int slice type %T", value)
	}
	out := make([]*big.Int, len(v))
	for i, b := range v {
		out[i] = new(big.Int).Set(b)
	}
	return out, nil
}

func asHash(value interface{}) (common.Hash, error) {
	switch v := value.(type) {
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported hash type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
