package experiment

import "context"

type contextKey int

const (
	snapshotContextKey contextKey = iota
	runIDContextKey
)

// ContextWithSnapshot attaches the snapshot captured functions resolve from.
func ContextWithSnapshot(ctx context.Context, snapshot *Snapshot) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, snapshotContextKey, snapshot)
}

// SnapshotFromContext returns the snapshot attached to ctx, if any.
func SnapshotFromContext(ctx context.Context) *Snapshot {
	if ctx == nil {
		return nil
	}
	snapshot, _ := ctx.Value(snapshotContextKey).(*Snapshot)
	return snapshot
}

// ContextWithRunID tags ctx with the id of the executing run.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDContextKey, id)
}

// RunIDFromContext returns the id of the run executing ctx.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDContextKey).(string)
	return id, ok && id != ""
}
