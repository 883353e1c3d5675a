package pricefeed

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func writeLines(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestJSONLSourceReplaysInOrder(t *testing.T) {
	weth := common.HexToAddress("0x01")
	path := writeLines(t,
		`{"at":"2024-01-01T00:00:00Z","prices":{"0x0000000000000000000000000000000000000001":2000}}
{"at":"2024-01-01T00:01:00Z","prices":{"0x0000000000000000000000000000000000000001":2010.5}}
`)

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatalf("NewJSONLSource: %v", err)
	}
	defer src.Close()

	ctx := context.Background()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got, _ := first.Price(weth); got != 2000 {
		t.Fatalf("first price = %v, want 2000", got)
	}

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !second.At.After(first.At) {
		t.Fatalf("snapshots out of order: %v then %v", first.At, second.At)
	}
	if got, _ := second.Price(weth); got != 2010.5 {
		t.Fatalf("second price = %v, want 2010.5", got)
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of file, got %v", err)
	}
}

func TestJSONLSourceSkipsMalformedLines(t *testing.T) {
	path := writeLines(t,
		`not json at all
{"at":"2024-01-01T00:00:00Z","prices":{"0x0000000000000000000000000000000000000001":1}}
{"prices":{"0x0000000000000000000000000000000000000001":2}}

{"at":"2024-01-01T00:02:00Z","prices":{"0x0000000000000000000000000000000000000001":3}}
`)

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatalf("NewJSONLSource: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	var got []Snapshot
	for {
		snap, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, snap)
	}

	if len(got) != 2 {
		t.Fatalf("parsed %d snapshots, want 2", len(got))
	}
	if src.Skipped() != 2 {
		t.Fatalf("skipped = %d, want 2 (garbage line and missing timestamp)", src.Skipped())
	}
}

func TestJSONLSourceHonoursContext(t *testing.T) {
	path := writeLines(t, `{"at":"2024-01-01T00:00:00Z","prices":{}}`+"\n")

	src, err := NewJSONLSource(path)
	if err != nil {
		t.Fatalf("NewJSONLSource: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSnapshotPrice(t *testing.T) {
	weth := common.HexToAddress("0x01")
	snap := Snapshot{
		At:     time.Unix(0, 0),
		Prices: map[common.Address]float64{weth: 1850.25},
	}

	if price, ok := snap.Price(weth); !ok || price != 1850.25 {
		t.Fatalf("Price = %v/%v, want 1850.25/true", price, ok)
	}
	if _, ok := snap.Price(common.HexToAddress("0x02")); ok {
		t.Fatal("expected missing token to report !ok")
	}
}
