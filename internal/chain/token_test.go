package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// fakeCaller answers eth_call by method selector.
type fakeCaller struct {
	parsed  abi.ABI
	answers map[string][]interface{}
	block   *big.Int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.block = block
	method, err := f.parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	values, ok := f.answers[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(values...)
}

func TestFetchTokenMeta(t *testing.T) {
	parsed, err := ERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	caller := &fakeCaller{parsed: parsed, answers: map[string][]interface{}{
		"decimals": {uint8(6)},
		"symbol":   {"USDC"},
		"name":     {"USD Coin"},
	}}

	token := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	meta, err := FetchTokenMeta(context.Background(), caller, token, nil)
	if err != nil {
		t.Fatalf("fetch meta: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" || meta.Name != "USD Coin" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if meta.Address != token.Hex() {
		t.Fatalf("unexpected address %s", meta.Address)
	}
}

func TestFetchTokenMetaRequiresDecimals(t *testing.T) {
	parsed, err := ERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	caller := &fakeCaller{parsed: parsed, answers: map[string][]interface{}{}}
	if _, err := FetchTokenMeta(context.Background(), caller, common.HexToAddress("0x01"), nil); err == nil {
		t.Fatalf("expected error without decimals")
	}
}

func TestBalanceOf(t *testing.T) {
	parsed, err := ERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	caller := &fakeCaller{parsed: parsed, answers: map[string][]interface{}{
		"balanceOf": {big.NewInt(12345)},
	}}
	bal, err := BalanceOf(context.Background(), caller, common.HexToAddress("0x01"), common.HexToAddress("0x02"), nil)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if bal.Int64() != 12345 {
		t.Fatalf("unexpected balance %s", bal)
	}
}

func TestCallWithoutClient(t *testing.T) {
	parsed, err := ERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	if _, err := Call(context.Background(), nil, common.Address{}, parsed, "decimals", nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
