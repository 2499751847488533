package gate

import "context"

// Caller is the authorized actor of the current request.
type Caller struct {
	UserID        string
	Email         string
	Role          string
	FireStationID *int64
	WorkshopID    *int64
}

// FireStation returns the caller's fire station id.
func (c Caller) FireStation() (int64, bool) {
	if c.FireStationID == nil {
		return 0, false
	}
	return *c.FireStationID, true
}

// Workshop returns the caller's workshop id.
func (c Caller) Workshop() (int64, bool) {
	if c.WorkshopID == nil {
		return 0, false
	}
	return *c.WorkshopID, true
}

type callerKey struct{}

// ContextWithCaller stores the caller in ctx.
func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller placed by a guard.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
