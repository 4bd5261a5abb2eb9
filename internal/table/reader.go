package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadOptions controls how raw extracts are decoded.
type ReadOptions struct {
	// Delimiter for CSV. If 0, sniffs among ',', ';', '\t' and '|' from the header line.
	Delimiter rune
	// Sheet selects an XLSX sheet by name; empty means the first sheet.
	Sheet string
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
}

// ReadFile loads a raw extract, choosing the decoder by file extension.
func ReadFile(path string, kind Kind, opt ReadOptions) (*Table, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return ReadXLSXFile(path, kind, opt)
	case strings.HasSuffix(lower, ".json"):
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open json: %w", err)
		}
		defer f.Close()
		return ReadJSON(f, filepath.Base(path), kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 && strings.HasSuffix(lower, ".tsv") {
		opt.Delimiter = '\t'
	}
	return ReadCSV(f, filepath.Base(path), kind, opt)
}

// Read decodes an in-memory payload such as an uploaded file. The name is
// used for format detection and error messages.
func Read(data []byte, name string, kind Kind, opt ReadOptions) (*Table, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return ReadXLSX(bytes.NewReader(data), name, kind, opt)
	case strings.HasSuffix(lower, ".json"):
		return ReadJSON(bytes.NewReader(data), name, kind)
	}
	if opt.Delimiter == 0 && strings.HasSuffix(lower, ".tsv") {
		opt.Delimiter = '\t'
	}
	return ReadCSV(bytes.NewReader(data), name, kind, opt)
}

// ReadCSV decodes delimited text with a header row. Short rows are padded,
// long rows truncated to the header width.
func ReadCSV(r io.Reader, name string, kind Kind, opt ReadOptions) (*Table, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New(kind), nil
		}
		return nil, malformed(name, "read header", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[i] = strings.TrimSpace(h)
	}
	if len(cols) == 0 || (len(cols) == 1 && cols[0] == "") {
		return New(kind), nil
	}

	t := New(kind, cols...)
	maxRows := opt.MaxRows
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, malformed(name, fmt.Sprintf("read row %d", line), err)
		}
		if isBlank(rec) {
			continue
		}
		row := make(Record, len(cols))
		for i, c := range cols {
			if c == "" {
				continue
			}
			if i < len(rec) {
				row[c] = rec[i]
			} else {
				row[c] = ""
			}
		}
		t.Rows = append(t.Rows, row)
		if maxRows > 0 && len(t.Rows) >= maxRows {
			break
		}
	}
	return t, nil
}

// sniffDelimiter peeks at the header line and picks the most frequent
// candidate separator, defaulting to comma.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
