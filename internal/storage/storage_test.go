package storage

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"honestledger/internal/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &FileStore{Path: filepath.Join(t.TempDir(), "nested", "state.json")}

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	snap := model.Snapshot{
		Version: 1,
		Assets:  []model.ReserveAsset{{ID: common.HexToAddress("0xa1"), Decimals: 6, Active: true}},
		Fees:    model.FeeLedger{Claimable: big.NewInt(80), Reserved: big.NewInt(20)},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Version != 1 || got.Fees.Claimable.Int64() != 80 || got.Assets[0].Decimals != 6 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.UpdatedAt == "" {
		t.Fatalf("updated_at not set")
	}
}

func TestFileStoreRejectsVersionGap(t *testing.T) {
	ctx := context.Background()
	store := &FileStore{Path: filepath.Join(t.TempDir(), "state.json")}
	if err := store.Save(ctx, model.Snapshot{Version: 1}); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	err := store.Save(ctx, model.Snapshot{Version: 1})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := store.Save(ctx, model.Snapshot{Version: 2}); err != nil {
		t.Fatalf("save v2: %v", err)
	}
}

func TestJsonlJournalTail(t *testing.T) {
	ctx := context.Background()
	j := NewJsonlJournal(filepath.Join(t.TempDir(), "journal.jsonl"))

	entries, err := j.Tail(ctx, 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty journal, got %d err=%v", len(entries), err)
	}

	for _, op := range []string{"mint", "swap", "redeem"} {
		if err := j.Append(ctx, model.JournalEntry{ID: op, Operation: op}); err != nil {
			t.Fatalf("append %s: %v", op, err)
		}
	}

	entries, err = j.Tail(ctx, 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 || entries[0].Operation != "swap" || entries[1].Operation != "redeem" {
		t.Fatalf("unexpected tail: %+v", entries)
	}

	entries, err = j.Tail(ctx, 0)
	if err != nil || len(entries) != 3 {
		t.Fatalf("expected all entries, got %d err=%v", len(entries), err)
	}
}
