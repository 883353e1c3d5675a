package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceOf reads the ERC20 balance of owner at a block height. Pass nil for
// the latest state.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address, blockNumber *big.Int) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := c.callMethod(ctx, token, parsed, "balanceOf", blockNumber, owner)
	if err != nil {
		return nil, err
	}
	bal, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return bal, nil
}

// Allowance reads the ERC20 allowance granted by owner to spender.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := c.callMethod(ctx, token, parsed, "allowance", nil, owner, spender)
	if err != nil {
		return nil, err
	}
	allowance, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return allowance, nil
}

// CheckSpendable verifies the sender holds amount of token and has approved
// the vault for at least that much before a swap is submitted.
func (c *Client) CheckSpendable(ctx context.Context, token, sender, vaultAddr common.Address, amount *big.Int) error {
	balance, err := c.BalanceOf(ctx, token, sender, nil)
	if err != nil {
		return fmt.Errorf("balance check: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: have %s, need %s", balance, amount)
	}

	allowance, err := c.Allowance(ctx, token, sender, vaultAddr)
	if err != nil {
		return fmt.Errorf("allowance check: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance: have %s, need %s", allowance, amount)
	}
	return nil
}
