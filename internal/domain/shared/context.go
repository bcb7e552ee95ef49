package shared

import (
	"context"

	"github.com/google/uuid"
)

type actorKey struct{}

// WithActorID stores the id of the operator performing a change.
func WithActorID(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorIDFromContext returns the operator id stored by WithActorID, if any.
func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
