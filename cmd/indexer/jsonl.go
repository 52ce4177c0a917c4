package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// embeddingRow is one line of the trainer's JSONL export.
type embeddingRow struct {
	ID        int64     `json:"id"`
	Embedding []float32 `json:"embedding"`
}

// readEmbeddings parses a JSONL embedding export. Every vector must have
// the expected dimensionality; a mismatch aborts the whole load rather than
// leaving a partially usable index.
func readEmbeddings(r io.Reader, dims int) ([]embeddingRow, error) {
	var rows []embeddingRow
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var row embeddingRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row.Embedding) != dims {
			return nil, fmt.Errorf("line %d: vector has %d dims, want %d", line, len(row.Embedding), dims)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
