package pricing

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"vaultArb/internal/model"
)

func weightedState() *model.PoolState {
	units := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	}
	return &model.PoolState{
		ID:      common.HexToHash("0x01"),
		Address: common.HexToAddress("0xaa"),
		Type:    model.PoolTypeWeighted,
		Tokens: []common.Address{
			common.HexToAddress("0x01"),
			common.HexToAddress("0x02"),
		},
		Balances: []*big.Int{units(1000), units(1000)},
		Decimals: []uint8{18, 18},
		Weights:  []*big.Int{big.NewInt(5e17), big.NewInt(5e17)},
		SwapFee:  big.NewInt(3e15),
	}
}

func TestNewModelDispatchesWeighted(t *testing.T) {
	m, err := NewModel(weightedState(), 0, 1)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	if m.Type() != model.PoolTypeWeighted {
		t.Fatalf("Type = %s, want weighted", m.Type())
	}
	if _, err := m.SpotPrice(); err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
}

func TestNewModelRejectsUnknownType(t *testing.T) {
	state := weightedState()
	state.Type = model.PoolTypeUnknown

	if _, err := NewModel(state, 0, 1); err == nil {
		t.Fatal("expected error for unregistered pool type")
	}
	if _, err := NewModel(nil, 0, 1); err == nil {
		t.Fatal("expected error for nil state")
	}
}
