package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vaultArb/internal/model"
)

// JsonlJournal appends trade records to a JSONL file, one JSON object per
// line. The file opens lazily on the first batch and stays open; every
// batch is flushed so a crash loses at most the batch being written.
type JsonlJournal struct {
	path string

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

// PutTradeBatch appends the batch and flushes it to the OS.
func (j *JsonlJournal) PutTradeBatch(trades []model.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.open(); err != nil {
		return err
	}

	enc := json.NewEncoder(j.buf)
	for i := range trades {
		if err := enc.Encode(&trades[i]); err != nil {
			return fmt.Errorf("encode trade record: %w", err)
		}
	}
	if err := j.buf.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the file. Safe to call when
// nothing was ever written.
func (j *JsonlJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	if err := j.buf.Flush(); err != nil {
		j.file.Close()
		return fmt.Errorf("flush journal: %w", err)
	}
	err := j.file.Close()
	j.file = nil
	j.buf = nil
	return err
}

func (j *JsonlJournal) open() error {
	if j.file != nil {
		return nil
	}
	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", j.path, err)
	}
	j.file = file
	j.buf = bufio.NewWriter(file)
	return nil
}
