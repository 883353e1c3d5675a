package bot

import (
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"  0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48  ",
		"",
	})
	if err != nil {
		t.Fatalf("ParseAddresses: %v", err)
	}
	want := []common.Address{
		common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseAddresses = %v, want %v", got, want)
	}

	if _, err := ParseAddresses([]string{"not-an-address"}); err == nil {
		t.Errorf("expected error for malformed address")
	}
}

func TestParseAssetMap(t *testing.T) {
	got, err := ParseAssetMap([]string{
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2=weth",
		" 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48 = usdc ",
	})
	if err != nil {
		t.Fatalf("ParseAssetMap: %v", err)
	}
	want := map[common.Address]string{
		common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"): "weth",
		common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): "usdc",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseAssetMap = %v, want %v", got, want)
	}

	bad := [][]string{
		{"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
		{"nope=weth"},
		{"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2="},
	}
	for _, inputs := range bad {
		if _, err := ParseAssetMap(inputs); err == nil {
			t.Errorf("expected error for %v", inputs)
		}
	}
}

func TestTokenPairs(t *testing.T) {
	cases := []struct {
		n    int
		want [][2]int
	}{
		{0, [][2]int{}},
		{1, [][2]int{}},
		{2, [][2]int{{0, 1}}},
		{3, [][2]int{{0, 1}, {0, 2}, {1, 2}}},
	}
	for _, c := range cases {
		got := tokenPairs(c.n)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("tokenPairs(%d) = %v, want %v", c.n, got, c.want)
		}
	}
}
