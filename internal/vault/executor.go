package vault

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"vaultArb/internal/model"
)

// SwapKindGivenIn is the Vault swap kind where the input amount is fixed.
const SwapKindGivenIn uint8 = 0

const (
	defaultSwapGasLimit = 350_000
	deadlineWindow      = 5 * time.Minute
)

type singleSwap struct {
	PoolId   [32]byte
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

type fundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

// Executor signs and submits Vault swaps built from trade instructions.
type Executor struct {
	client      *Client
	vault       common.Address
	key         *ecdsa.PrivateKey
	sender      common.Address
	chainID     *big.Int
	slippageBps int64
	gasLimit    uint64
	logger      *zap.Logger
}

func NewExecutor(
	ctx context.Context,
	client *Client,
	vaultAddr common.Address,
	privateKeyHex string,
	slippageBps int64,
	logger *zap.Logger,
) (*Executor, error) {
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if slippageBps < 0 || slippageBps >= 10_000 {
		return nil, fmt.Errorf("slippage bps out of range: %d", slippageBps)
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		client:      client,
		vault:       vaultAddr,
		key:         key,
		sender:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:     chainID,
		slippageBps: slippageBps,
		gasLimit:    defaultSwapGasLimit,
		logger:      logger,
	}, nil
}

// Sender returns the signing address.
func (e *Executor) Sender() common.Address {
	return e.sender
}

// Execute submits the instruction as a single GIVEN_IN Vault swap. The
// output limit is expectedOut reduced by the configured slippage.
func (e *Executor) Execute(
	ctx context.Context,
	state *model.PoolState,
	instr model.TradeInstruction,
	expectedOut *big.Int,
) (common.Hash, error) {
	if err := instr.Validate(); err != nil {
		return common.Hash{}, err
	}
	if instr.Amount.Sign() == 0 {
		return common.Hash{}, fmt.Errorf("instruction amount is zero")
	}
	if instr.AssetInIndex >= len(state.Tokens) || instr.AssetOutIndex >= len(state.Tokens) {
		return common.Hash{}, fmt.Errorf("instruction indices out of range")
	}

	assetIn := state.Tokens[instr.AssetInIndex]
	assetOut := state.Tokens[instr.AssetOutIndex]

	if err := e.client.CheckSpendable(ctx, assetIn, e.sender, e.vault, instr.Amount); err != nil {
		return common.Hash{}, err
	}

	parsed, err := VaultABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse vault abi: %w", err)
	}

	limit := ApplySlippage(expectedOut, e.slippageBps)
	deadline := big.NewInt(time.Now().Add(deadlineWindow).Unix())

	data, err := parsed.Pack("swap",
		singleSwap{
			PoolId:   instr.PoolID,
			Kind:     SwapKindGivenIn,
			AssetIn:  assetIn,
			AssetOut: assetOut,
			Amount:   instr.Amount,
			UserData: instr.UserData,
		},
		fundManagement{
			Sender:    e.sender,
			Recipient: e.sender,
		},
		limit,
		deadline,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack swap: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.vault,
		Value:    big.NewInt(0),
		Gas:      e.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign swap: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send swap: %w", err)
	}

	e.logger.Info("swap submitted",
		zap.String("tx", signed.Hash().Hex()),
		zap.String("pool", state.Address.Hex()),
		zap.String("asset_in", assetIn.Hex()),
		zap.String("asset_out", assetOut.Hex()),
		zap.String("amount", instr.Amount.String()),
		zap.String("limit", limit.String()),
	)
	return signed.Hash(), nil
}

// ApplySlippage reduces amount by bps basis points, rounding down.
func ApplySlippage(amount *big.Int, bps int64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(10_000-bps))
	return out.Div(out, big.NewInt(10_000))
}
