package model

import (
	"encoding/json"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestJournalEntryJSONRoundTrip(t *testing.T) {
	original := JournalEntry{
		ID:         "5f0c3a52-5a4e-4a8e-9d7e-6a8f3c1e2b10",
		Version:    12,
		Operation:  "savings.deposit",
		Caller:     "0x1111111111111111111111111111111111111111",
		Args:       map[string]string{"amount": "100000000000000000000"},
		Result:     map[string]string{"shares": "100000000000000000000"},
		RecordedAt: "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded JournalEntry
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
	if !decoded.Committed() {
		t.Fatalf("entry without error should be committed")
	}
}

func TestSnapshotKeepsLargeAmountsExact(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	snap := Snapshot{
		Version: 3,
		Assets: []ReserveAsset{{
			ID:          common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			Decimals:    6,
			Active:      true,
			Integration: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		}},
		Balances: []TokenBalance{{
			Token:   common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			Account: common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
			Amount:  huge,
		}},
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Balances[0].Amount.Cmp(huge) != 0 {
		t.Fatalf("amount mismatch: %s != %s", decoded.Balances[0].Amount, huge)
	}
	if !decoded.Assets[0].HasIntegration() || decoded.Assets[0].Decimals != 6 {
		t.Fatalf("asset mismatch: %+v", decoded.Assets[0])
	}
}
