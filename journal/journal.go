// Package journal appends scans to the per-session spreadsheet.
package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// FileName is the workbook created inside every session folder.
const FileName = "session_log.xlsx"

var header = []interface{}{"Time", "Barcode"}

// Row is one journal entry.
type Row struct {
	Time    string
	Barcode string
}

// Path returns the workbook path for a session folder.
func Path(folder string) string {
	return filepath.Join(folder, FileName)
}

// Append writes a row to the session workbook, creating the folder and the
// workbook (with a header row) when needed.
func Append(folder, barcode, timestamp string) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("failed to create journal folder: %w", err)
	}
	path := Path(folder)

	f, sheet, err := openOrCreate(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read journal rows: %w", err)
	}
	next := len(rows) + 1
	if next == 1 {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write journal header: %w", err)
		}
		next = 2
	}

	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &[]interface{}{timestamp, barcode}); err != nil {
		return fmt.Errorf("failed to write journal row: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save journal %s: %w", path, err)
	}
	return nil
}

// Rows reads back all entries below the header.
func Rows(folder string) ([]Row, error) {
	f, err := excelize.OpenFile(Path(folder))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, fmt.Errorf("failed to read journal rows: %w", err)
	}
	var out []Row
	for i, r := range rows {
		if i == 0 {
			continue
		}
		var row Row
		if len(r) > 0 {
			row.Time = r[0]
		}
		if len(r) > 1 {
			row.Barcode = r[1]
		}
		out = append(out, row)
	}
	return out, nil
}

func openOrCreate(path string) (*excelize.File, string, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open journal %s: %w", path, err)
		}
		return f, f.GetSheetName(f.GetActiveSheetIndex()), nil
	}
	f := excelize.NewFile()
	return f, f.GetSheetName(f.GetActiveSheetIndex()), nil
}
