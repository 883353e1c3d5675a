package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TokenMeta holds immutable ERC20 metadata.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// FetchTokenMeta loads token metadata via ERC20 calls, serving repeats from
// an in-memory cache. A missing symbol is tolerated; missing decimals is not,
// because amount scaling depends on it.
func (c *Client) FetchTokenMeta(ctx context.Context, token common.Address) (TokenMeta, error) {
	if meta, ok := c.tokenMeta.Get(token); ok {
		return meta, nil
	}

	parsed, err := ERC20ABI()
	if err != nil {
		return TokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	meta := TokenMeta{Address: token}

	values, err := c.callMethod(ctx, token, parsed, "decimals", nil)
	if err != nil {
		return TokenMeta{}, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return TokenMeta{}, fmt.Errorf("decimals: %w", err)
	}
	meta.Decimals = decimals

	if values, err := c.callMethod(ctx, token, parsed, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	}

	c.tokenMeta.Add(token, meta)
	return meta, nil
}
