// Package export writes batch extraction results as XLSX or CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Receipts"

// Header is the first row of every export.
var Header = []string{"file", "date", "amount", "category", "error"}

// Row is one processed receipt. Error is set, and the other result fields
// left empty, when the receipt could not be processed.
type Row struct {
	File     string
	Date     string
	Amount   decimal.Decimal
	Category string
	Error    string
}

func (r Row) failed() bool { return r.Error != "" }

// Format is an output file format.
type Format int

const (
	FormatXLSX Format = iota
	FormatCSV
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return 0, fmt.Errorf("unsupported export extension %q (want .xlsx or .csv)", filepath.Ext(path))
	}
}

// WriteFile writes rows to path in the format its extension names.
func WriteFile(path string, rows []Row) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	switch format {
	case FormatCSV:
		err = WriteCSV(f, rows)
	default:
		err = WriteXLSX(f, rows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteCSV writes rows as comma separated values with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	for _, r := range rows {
		amount := ""
		if !r.failed() {
			amount = r.Amount.StringFixed(2)
		}
		if err := cw.Write([]string{r.File, r.Date, amount, r.Category, r.Error}); err != nil {
			return fmt.Errorf("csv write: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return nil
}

// WriteXLSX writes rows to a single worksheet. Amounts are numeric cells
// shown with two decimals.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, r.File)
		write(2, r.Date)
		if !r.failed() {
			write(3, r.Amount.InexactFloat64())
			cell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(SheetName, cell, cell, amountStyle)
		}
		write(4, r.Category)
		write(5, r.Error)
	}

	_ = f.SetColWidth(SheetName, "A", "A", 36) // file
	_ = f.SetColWidth(SheetName, "B", "B", 12) // date
	_ = f.SetColWidth(SheetName, "C", "C", 12) // amount
	_ = f.SetColWidth(SheetName, "D", "D", 18) // category
	_ = f.SetColWidth(SheetName, "E", "E", 48) // error

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
