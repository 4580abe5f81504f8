package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyActorId       = ContextKey("ActorId")
	ContextKeyActorRole     = ContextKey("ActorRole")
	ContextKeyCorrelationId = ContextKey("CorrelationId")
	// ContextKeyBypassLockGuard lets an explicit administrative write touch locked rows.
	ContextKeyBypassLockGuard = ContextKey("BypassLockGuard")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) bool {
	if ctx == nil {
		return false
	}
	v, ok := ctx.Value(key).(bool)
	return ok && v
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
