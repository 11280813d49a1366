package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

// CSV appends rows to a UTF-8 CSV file, writing the header when the file is
// new or empty. The file is opened and closed on every append.
type CSV struct {
	Path string
}

// Append implements Sink.
func (s CSV) Append(_ context.Context, row models.Row) error {
	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(models.Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	} else if torn, err := endsMidLine(f, info.Size()); err != nil {
		return err
	} else if torn {
		// An interrupted write left a partial line; start a fresh one.
		if _, err := f.Write([]byte("\n")); err != nil {
			return fmt.Errorf("repair csv: %w", err)
		}
	}

	if err := w.Write(row.Record()); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Sync()
}

// IDs implements IDSource. A missing file has no ids.
func (s CSV) IDs() ([]string, error) {
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

// Rows reads every well-formed data row. Lines with the wrong number of
// fields, such as one cut short by a crash, are skipped.
func (s CSV) Rows() ([]models.Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []models.Row
	header := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		row, err := models.RowFromRecord(rec)
		if err != nil || row.DeclarationID == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func endsMidLine(f *os.File, size int64) (bool, error) {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, fmt.Errorf("inspect csv tail: %w", err)
	}
	return last[0] != '\n', nil
}
