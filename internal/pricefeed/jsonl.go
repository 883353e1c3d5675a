package pricefeed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLineBytes = 10 * 1024 * 1024

// JSONLSource replays reference price snapshots from a JSONL file, one
// snapshot per line, in file order.
type JSONLSource struct {
	file    *os.File
	scanner *bufio.Scanner
	skipped int
}

func NewJSONLSource(path string) (*JSONLSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	return &JSONLSource{file: file, scanner: scanner}, nil
}

// Next returns the next snapshot in the file. Lines that do not parse are
// skipped and counted. Returns io.EOF once the file is exhausted.
func (s *JSONLSource) Next(ctx context.Context) (Snapshot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Snapshot{}, fmt.Errorf("read price file: %w", err)
			}
			return Snapshot{}, io.EOF
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var snap Snapshot
		if err := json.Unmarshal(line, &snap); err != nil || snap.At.IsZero() {
			s.skipped++
			continue
		}
		return snap, nil
	}
}

// Skipped reports how many lines failed to parse so far.
func (s *JSONLSource) Skipped() int {
	return s.skipped
}

func (s *JSONLSource) Close() error {
	return s.file.Close()
}
