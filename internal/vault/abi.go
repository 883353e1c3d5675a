package vault

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const vaultABIJSON = `[
  {
    "inputs": [{"internalType": "bytes32", "name": "poolId", "type": "bytes32"}],
    "name": "getPoolTokens",
    "outputs": [
      {"internalType": "address[]", "name": "tokens", "type": "address[]"},
      {"internalType": "uint256[]", "name": "balances", "type": "uint256[]"},
      {"internalType": "uint256", "name": "lastChangeBlock", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {
        "components": [
          {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
          {"internalType": "uint8", "name": "kind", "type": "uint8"},
          {"internalType": "address", "name": "assetIn", "type": "address"},
          {"internalType": "address", "name": "assetOut", "type": "address"},
          {"internalType": "uint256", "name": "amount", "type": "uint256"},
          {"internalType": "bytes", "name": "userData", "type": "bytes"}
        ],
        "internalType": "struct IVault.SingleSwap",
        "name": "singleSwap",
        "type": "tuple"
      },
      {
        "components": [
          {"internalType": "address", "name": "sender", "type": "address"},
          {"internalType": "bool", "name": "fromInternalBalance", "type": "bool"},
          {"internalType": "address payable", "name": "recipient", "type": "address"},
          {"internalType": "bool", "name": "toInternalBalance", "type": "bool"}
        ],
        "internalType": "struct IVault.FundManagement",
        "name": "funds",
        "type": "tuple"
      },
      {"internalType": "uint256", "name": "limit", "type": "uint256"},
      {"internalType": "uint256", "name": "deadline", "type": "uint256"}
    ],
    "name": "swap",
    "outputs": [{"internalType": "uint256", "name": "amountCalculated", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  }
]`

const weightedPoolABIJSON = `[
  {
    "inputs": [],
    "name": "getPoolId",
    "outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getVault",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getNormalizedWeights",
    "outputs": [{"internalType": "uint256[]", "name": "", "type": "uint256[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getSwapFeePercentage",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc20ABIJSON = `[
  {
    "inputs": [],
    "name": "decimals",
    "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "symbol",
    "outputs": [{"internalType": "string", "name": "", "type": "string"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "account", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {"internalType": "address", "name": "spender", "type": "address"}
    ],
    "name": "allowance",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	vaultABI     abi.ABI
	vaultABIOnce sync.Once
	vaultABIErr  error

	weightedPoolABI     abi.ABI
	weightedPoolABIOnce sync.Once
	weightedPoolABIErr  error

	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

// VaultABI returns the parsed Vault ABI.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// WeightedPoolABI returns the parsed weighted pool ABI.
func WeightedPoolABI() (abi.ABI, error) {
	weightedPoolABIOnce.Do(func() {
		weightedPoolABI, weightedPoolABIErr = abi.JSON(strings.NewReader(weightedPoolABIJSON))
	})
	return weightedPoolABI, weightedPoolABIErr
}

// ERC20ABI returns the parsed ERC20 ABI.
func ERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}
