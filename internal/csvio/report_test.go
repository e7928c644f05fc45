package csvio

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gratbox/graph-csv-sync/internal/reconcile"
)

func TestReportRoundTrip(t *testing.T) {
	rows := []reconcile.OutcomeRow{
		{Key: "A", Operation: reconcile.OpAdd, Result: reconcile.ResultSuccess},
		{Key: "B", Operation: reconcile.OpNoOp, Result: reconcile.ResultSkipped},
		{Key: "C", Operation: reconcile.OpRemove, Result: reconcile.ResultError, ErrorDetail: "denied, try later"},
		{Key: "D", Operation: reconcile.OpUpdate, Result: reconcile.ResultWouldApply},
	}
	path := filepath.Join(t.TempDir(), "reports", "out.csv")

	if err := WriteReport(path, rows); err != nil {
		t.Fatalf("write report: %v", err)
	}

	got, err := ReadReport(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, rows)
	}
}

func TestReportPreservesOrder(t *testing.T) {
	rows := []reconcile.OutcomeRow{
		{Key: "zeta", Operation: reconcile.OpAdd, Result: reconcile.ResultSuccess},
		{Key: "alpha", Operation: reconcile.OpAdd, Result: reconcile.ResultSuccess},
	}
	path := filepath.Join(t.TempDir(), "out.csv")

	if err := WriteReport(path, rows); err != nil {
		t.Fatalf("write report: %v", err)
	}
	got, err := ReadReport(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if got[0].Key != "zeta" || got[1].Key != "alpha" {
		t.Errorf("rows reordered: %+v", got)
	}
}

func TestReportCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "out.csv")

	if err := WriteReport(path, nil); err != nil {
		t.Fatalf("write report: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("report file not created: %v", err)
	}
}

func TestReportIOError(t *testing.T) {
	dir := t.TempDir()
	// a file standing where the report directory should be
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	err := WriteReport(filepath.Join(blocker, "out.csv"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*IOError); !ok {
		t.Errorf("expected IOError, got %T", err)
	}
}

func TestWriteRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.csv")
	header := []string{"Id", "SerialNumber"}
	rows := [][]string{{"1", "SN001"}, {"2", "SN002"}}

	if err := WriteRows(path, header, rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := "Id,SerialNumber\n1,SN001\n2,SN002\n"
	if string(data) != want {
		t.Errorf("unexpected file content:\n got %q\nwant %q", string(data), want)
	}
}
