package bot

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseAssetMap converts "0xtoken=symbol" entries into the token-to-symbol
// mapping the price feed subscribes with.
func ParseAssetMap(inputs []string) (map[common.Address]string, error) {
	assets := make(map[common.Address]string, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		token, symbol, found := strings.Cut(input, "=")
		if !found {
			return nil, fmt.Errorf("invalid asset mapping %q, want 0xtoken=symbol", input)
		}
		token = strings.TrimSpace(token)
		symbol = strings.TrimSpace(symbol)
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("invalid asset address: %s", token)
		}
		if symbol == "" {
			return nil, fmt.Errorf("empty symbol for asset %s", token)
		}
		assets[common.HexToAddress(token)] = symbol
	}
	return assets, nil
}

// tokenPairs enumerates the unordered token index pairs of an n-token pool.
// The finder corrects direction per pair, so (i, j) covers (j, i) too.
func tokenPairs(n int) [][2]int {
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}
