package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

// csvHeader is the fixed column order for CSV round-trips.
var csvHeader = []string{
	"invocation", "session", "depth", "op", "actor", "token", "amount", "err", "timestamp",
}

// WriteCSV writes the journal as CSV with a header row.
func (j *Journal) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, inv := range j.Invocations() {
		for _, r := range inv.Records {
			row := []string{
				r.Invocation,
				strconv.FormatUint(uint64(r.Session), 10),
				strconv.Itoa(r.Depth),
				string(r.Op),
				string(r.Actor),
				string(r.Token),
				r.Amount,
				r.Err,
				r.Timestamp.Format(time.RFC3339Nano),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the journal to a CSV file.
func (j *Journal) SaveCSV(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()
	return j.WriteCSV(f)
}

// ParseCSV reads a journal from a CSV file written by WriteCSV.
func ParseCSV(filename string) (*Journal, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ParseCSVReader(f)
}

// ParseCSVReader reads a journal from a CSV stream written by WriteCSV.
func ParseCSVReader(r io.Reader) (*Journal, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return New(), nil
	}

	j := New()
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, len(csvHeader), len(row))
		}
		session, err := strconv.ParseUint(row[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("row %d: session: %w", i+2, err)
		}
		depth, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: depth: %w", i+2, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, row[8])
		if err != nil {
			return nil, fmt.Errorf("row %d: timestamp: %w", i+2, err)
		}
		j.Record(accountant.Record{
			Invocation: row[0],
			Session:    uint32(session),
			Depth:      depth,
			Op:         accountant.Op(row[3]),
			Actor:      accountant.Account(row[4]),
			Token:      accountant.Token(row[5]),
			Amount:     row[6],
			Err:        row[7],
			Timestamp:  ts,
		})
	}
	return j, nil
}
