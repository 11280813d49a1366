package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

// XLSX appends rows to the first sheet of a workbook. Each append loads the
// workbook, adds one row and replaces the file through a temporary copy.
type XLSX struct {
	Path string
}

// Append implements Sink.
func (s XLSX) Append(_ context.Context, row models.Row) error {
	f, next, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if next == 1 {
		if err := setRow(f, sheet, 1, models.Columns); err != nil {
			return fmt.Errorf("write xlsx header: %w", err)
		}
		next = 2
	}
	if err := setRow(f, sheet, next, row.Record()); err != nil {
		return fmt.Errorf("write xlsx row: %w", err)
	}

	ext := filepath.Ext(s.Path)
	tmp := strings.TrimSuffix(s.Path, ext) + ".tmp" + ext
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace xlsx: %w", err)
	}
	return nil
}

// open returns the workbook and the 1-based row the next record goes to.
func (s XLSX) open() (*excelize.File, int, error) {
	f, err := excelize.OpenFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), 1, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open xlsx: %w", err)
	}

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("read xlsx: %w", err)
	}
	return f, len(rows) + 1, nil
}

// IDs implements IDSource. A missing file has no ids.
func (s XLSX) IDs() ([]string, error) {
	rows, err := s.Rows()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.DeclarationID)
	}
	return ids, nil
}

// Rows reads every data row of the first sheet. Trailing empty cells are
// dropped by the reader, so short rows are padded before decoding.
func (s XLSX) Rows() ([]models.Row, error) {
	f, err := excelize.OpenFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}

	var out []models.Row
	for i, rec := range records {
		if i == 0 || len(rec) > len(models.Columns) {
			continue
		}
		for len(rec) < len(models.Columns) {
			rec = append(rec, "")
		}
		row, err := models.RowFromRecord(rec)
		if err != nil || row.DeclarationID == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func setRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}
