package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vaultArb/internal/model"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trades.jsonl")
	journal := NewJsonlJournal(path)

	first := model.TradeRecord{
		Timestamp:   "2024-01-01T00:00:00Z",
		PoolID:      "0x01",
		PoolAddress: "0xaa",
		TokenIn:     "0x01",
		TokenOut:    "0x02",
		AmountIn:    "10.5",
		ExpectedOut: "24.9",
		Status:      model.TradeStatusSimulated,
	}
	second := first
	second.Timestamp = "2024-01-01T00:01:00Z"
	second.Status = model.TradeStatusSubmitted
	second.TxHash = "0xbeef"

	if err := journal.PutTradeBatch([]model.TradeRecord{first}); err != nil {
		t.Fatalf("PutTradeBatch: %v", err)
	}
	if err := journal.PutTradeBatch([]model.TradeRecord{second}); err != nil {
		t.Fatalf("PutTradeBatch: %v", err)
	}
	if err := journal.PutTradeBatch(nil); err != nil {
		t.Fatalf("PutTradeBatch(nil): %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var got []model.TradeRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("journal holds %d records, want 2", len(got))
	}
	if got[0].Status != model.TradeStatusSimulated || got[1].Status != model.TradeStatusSubmitted {
		t.Fatalf("statuses = %s, %s", got[0].Status, got[1].Status)
	}
	if got[1].TxHash != "0xbeef" {
		t.Fatalf("tx hash = %q, want 0xbeef", got[1].TxHash)
	}
}
