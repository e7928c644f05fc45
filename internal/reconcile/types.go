package reconcile

import (
	"github.com/gratbox/graph-csv-sync/internal/record"
)

type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
	OpNoOp   OpKind = "noop"
)

type Mode string

const (
	ModeAddOnly   Mode = "add-only"
	ModeSyncExact Mode = "sync-exact"
)

type Result string

const (
	ResultSuccess    Result = "Success"
	ResultError      Result = "Error"
	ResultSkipped    Result = "Skipped"
	ResultWouldApply Result = "WouldApply"
)

// Operation is one planned action over a key. Desired carries the intended
// attributes for add/update; Remote carries the observed record for
// update/remove. Duplicate marks extraneous remote records sharing a key
// with the canonical one.
type Operation struct {
	Kind      OpKind
	Key       string
	Desired   *record.DesiredRecord
	Remote    *record.RemoteRecord
	Duplicate bool
}

// OutcomeRow is the terminal result of executing one Operation. Every
// operation produces exactly one row.
type OutcomeRow struct {
	Key         string
	Operation   OpKind
	Result      Result
	ErrorDetail string
}

type Results struct {
	Rows    []OutcomeRow
	Applied int
	Skipped int
	Errored int
}
