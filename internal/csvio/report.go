package csvio

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gratbox/graph-csv-sync/internal/reconcile"
)

// ReportHeader is the stable outcome report shape. Column order never
// changes between runs so downstream tooling can rely on it.
var ReportHeader = []string{"Key", "Operation", "Result", "ErrorDetail"}

// IOError marks a report that could not be persisted. The in-memory rows
// are still held by the caller.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WriteReport serializes rows to path in input order.
func WriteReport(path string, rows []reconcile.OutcomeRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ReportHeader); err != nil {
		return &IOError{Path: path, Err: err}
	}
	for _, row := range rows {
		rec := []string{row.Key, string(row.Operation), string(row.Result), row.ErrorDetail}
		if err := w.Write(rec); err != nil {
			return &IOError{Path: path, Err: err}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// ReadReport parses a previously written report back into outcome rows.
func ReadReport(path string) ([]reconcile.OutcomeRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	if len(records) == 0 {
		return nil, &IOError{Path: path, Err: fmt.Errorf("report is empty")}
	}

	rows := make([]reconcile.OutcomeRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 4 {
			continue
		}
		rows = append(rows, reconcile.OutcomeRow{
			Key:         rec[0],
			Operation:   reconcile.OpKind(rec[1]),
			Result:      reconcile.Result(rec[2]),
			ErrorDetail: rec[3],
		})
	}
	return rows, nil
}

// WriteRows serializes arbitrary tabular data, used by the inventory export.
func WriteRows(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return &IOError{Path: path, Err: err}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return &IOError{Path: path, Err: err}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}
