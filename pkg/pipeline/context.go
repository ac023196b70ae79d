package pipeline

import "context"

type contextKey int

const (
	runIDKey contextKey = iota
	unitIDKey
)

// ContextWithRunID returns ctx carrying the id of the run processing it.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id carried by ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)

	return runID
}

// ContextWithUnitID returns ctx carrying the id of the unit processed under it.
func ContextWithUnitID(ctx context.Context, unitID string) context.Context {
	return context.WithValue(ctx, unitIDKey, unitID)
}

// UnitIDFromContext returns the unit id carried by ctx, or "".
func UnitIDFromContext(ctx context.Context) string {
	unitID, _ := ctx.Value(unitIDKey).(string)

	return unitID
}
