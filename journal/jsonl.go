package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

// WriteJSONL writes every record as one JSON object per line, invocations
// in first-seen order.
func (j *Journal) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, inv := range j.Invocations() {
		for _, r := range inv.Records {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
		}
	}
	return nil
}

// SaveJSONL writes the journal to a JSONL file.
func (j *Journal) SaveJSONL(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := j.WriteJSONL(w); err != nil {
		return err
	}
	return w.Flush()
}

// ParseJSONL reads a journal from a JSONL file.
func ParseJSONL(filename string) (*Journal, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return ParseJSONLReader(f)
}

// ParseJSONLReader reads a journal from a JSONL stream. Blank lines are
// skipped; malformed lines fail with their line number.
func ParseJSONLReader(r io.Reader) (*Journal, error) {
	j := New()
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec accountant.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		j.Record(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	return j, nil
}

// StreamRecorder writes records straight to a writer as JSONL without
// retaining them. Useful for long demos where the in-memory journal is
// not wanted.
type StreamRecorder struct {
	enc *json.Encoder
}

// NewStreamRecorder creates a recorder that encodes to w.
func NewStreamRecorder(w io.Writer) *StreamRecorder {
	return &StreamRecorder{enc: json.NewEncoder(w)}
}

// Record encodes the record, dropping it on encoding failure.
func (s *StreamRecorder) Record(r accountant.Record) {
	_ = s.enc.Encode(r)
}
