package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gratbox/graph-csv-sync/internal/metrics"
	"github.com/gratbox/graph-csv-sync/internal/provider"
	"github.com/gratbox/graph-csv-sync/internal/record"
)

type Engine interface {
	Reconcile(ctx context.Context, desired []record.DesiredRecord) (Results, error)
}

type engine struct {
	provider provider.Provider
	task     string
	mode     Mode
	dryRun   bool
	metrics  *metrics.Metrics
}

func NewEngine(p provider.Provider, task string, mode Mode, dryRun bool, metrics *metrics.Metrics) *engine {
	return &engine{
		provider: p,
		task:     task,
		mode:     mode,
		dryRun:   dryRun,
		metrics:  metrics,
	}
}

func (e *engine) Reconcile(ctx context.Context, desired []record.DesiredRecord) (Results, error) {
	current, err := e.provider.Fetch(ctx)
	if err != nil {
		return Results{}, fmt.Errorf("fetch current state: %w", err)
	}
	slog.Info("Fetched current remote state", "task", e.task, "count", len(current))

	ops := Plan(desired, current, e.mode)
	slog.Info("Planned operations", "task", e.task, "count", len(ops), "mode", e.mode, "dryRun", e.dryRun)

	return e.apply(ctx, ops), nil
}

// Plan computes one Operation per key over the union of desired and current
// key sets. Output order is deterministic: stable sort by key, with
// duplicate removals following their canonical key.
func Plan(desired []record.DesiredRecord, current []record.RemoteRecord, mode Mode) []Operation {
	desiredByKey := make(map[string]record.DesiredRecord, len(desired))
	for _, d := range desired {
		desiredByKey[d.Key] = d
	}

	// Group current records by key. Duplicate keys upstream resolve to the
	// oldest-created record as canonical; the rest are extraneous.
	currentByKey := make(map[string][]record.RemoteRecord)
	for _, c := range current {
		currentByKey[c.Key] = append(currentByKey[c.Key], c)
	}
	for key, recs := range currentByKey {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Created.Before(recs[j].Created)
		})
		currentByKey[key] = recs
	}

	keys := make([]string, 0, len(desiredByKey)+len(currentByKey))
	seen := make(map[string]bool)
	for k := range desiredByKey {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range currentByKey {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var ops []Operation
	for _, key := range keys {
		d, wantExists := desiredByKey[key]
		recs := currentByKey[key]

		switch {
		case wantExists && len(recs) == 0:
			dcopy := d
			ops = append(ops, Operation{Kind: OpAdd, Key: key, Desired: &dcopy})

		case wantExists:
			canonical := recs[0]
			dcopy := d
			kind := OpNoOp
			if !record.AttrsEqual(d, canonical) {
				kind = OpUpdate
			}
			ops = append(ops, Operation{Kind: kind, Key: key, Desired: &dcopy, Remote: &canonical})
			ops = append(ops, duplicateOps(key, recs[1:], mode)...)

		default:
			canonical := recs[0]
			if mode == ModeSyncExact {
				ops = append(ops, Operation{Kind: OpRemove, Key: key, Remote: &canonical})
			} else {
				ops = append(ops, Operation{Kind: OpNoOp, Key: key, Remote: &canonical})
			}
			ops = append(ops, duplicateOps(key, recs[1:], mode)...)
		}
	}
	return ops
}

// duplicateOps reports extraneous remote records that share a key with the
// canonical one. They are only removed under sync-exact.
func duplicateOps(key string, extras []record.RemoteRecord, mode Mode) []Operation {
	var ops []Operation
	for i := range extras {
		r := extras[i]
		kind := OpNoOp
		if mode == ModeSyncExact {
			kind = OpRemove
		}
		ops = append(ops, Operation{Kind: kind, Key: key, Remote: &r, Duplicate: true})
	}
	return ops
}

// apply executes operations sequentially in plan order. One operation's
// failure is recorded and does not stop the rest. Every operation yields
// exactly one outcome row, in execution order.
func (e *engine) apply(ctx context.Context, ops []Operation) Results {
	results := Results{Rows: make([]OutcomeRow, 0, len(ops))}

	for _, op := range ops {
		row := e.applyOne(ctx, op)
		results.Rows = append(results.Rows, row)

		switch row.Result {
		case ResultSuccess, ResultWouldApply:
			results.Applied++
		case ResultError:
			results.Errored++
		default:
			results.Skipped++
		}
		e.metrics.IncOperation(e.task, string(op.Kind), string(row.Result))
	}
	return results
}

func (e *engine) applyOne(ctx context.Context, op Operation) OutcomeRow {
	row := OutcomeRow{Key: op.Key, Operation: op.Kind}

	if op.Kind == OpNoOp {
		row.Result = ResultSkipped
		if op.Duplicate {
			row.ErrorDetail = duplicateDetail(op)
		}
		return row
	}

	if e.dryRun {
		row.Result = ResultWouldApply
		if op.Duplicate {
			row.ErrorDetail = duplicateDetail(op)
		}
		return row
	}

	var err error
	switch op.Kind {
	case OpAdd:
		err = e.provider.Add(ctx, *op.Desired)
	case OpUpdate:
		err = e.provider.Update(ctx, *op.Desired, *op.Remote)
	case OpRemove:
		err = e.provider.Remove(ctx, *op.Remote)
	}

	if err != nil {
		slog.Error("Failed to apply operation", "task", e.task, "key", op.Key, "operation", op.Kind, "error", err)
		row.Result = ResultError
		row.ErrorDetail = err.Error()
		return row
	}

	row.Result = ResultSuccess
	if op.Duplicate {
		row.ErrorDetail = duplicateDetail(op)
	}
	return row
}

func duplicateDetail(op Operation) string {
	return fmt.Sprintf("duplicate remote record id=%s for key %s", op.Remote.ID, op.Key)
}
