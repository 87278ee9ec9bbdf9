package ledger

import (
	"context"
	"strings"
)

type contextKey string

const actorKey contextKey = "actor"

// DefaultActor is recorded when no actor is attached to the context.
const DefaultActor = "system"

// ContextWithActor returns a context whose mutations are attributed to actor.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, strings.TrimSpace(actor))
}

// ActorFromContext returns the actor attached to ctx, or DefaultActor.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return DefaultActor
	}
	actor, ok := ctx.Value(actorKey).(string)
	if !ok || actor == "" {
		return DefaultActor
	}
	return actor
}
