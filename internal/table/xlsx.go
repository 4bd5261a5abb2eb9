package table

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSXFile loads a workbook from disk.
func ReadXLSXFile(path string, kind Kind, opt ReadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, malformed(filepath.Base(path), "open xlsx", err)
	}
	defer f.Close()
	return readWorkbook(f, filepath.Base(path), kind, opt)
}

// ReadXLSX loads a workbook from a stream such as an upload body.
func ReadXLSX(r io.Reader, name string, kind Kind, opt ReadOptions) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, malformed(name, "open xlsx", err)
	}
	defer f.Close()
	return readWorkbook(f, name, kind, opt)
}

func readWorkbook(f *excelize.File, name string, kind Kind, opt ReadOptions) (*Table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return New(kind), nil
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, malformed(name, fmt.Sprintf("sheet %q not found", opt.Sheet), nil)
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, malformed(name, "read sheet "+sheet, err)
	}
	// Skip leading empty rows; the first non-empty row is the header.
	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return New(kind), nil
	}
	cols := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		cols[i] = strings.TrimSpace(h)
	}
	t := New(kind, cols...)
	for _, rec := range rows[start+1:] {
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
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			break
		}
	}
	return t, nil
}
