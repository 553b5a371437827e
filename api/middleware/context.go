package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

type contextKey string

const (
	ctxUserID  contextKey = "user_id"
	ctxOwnerID contextKey = "owner_id"
	ctxRole    contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// OwnerIDFromContext returns the gym owner the caller acts for, or uuid.Nil.
func OwnerIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(ctxOwnerID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// WithIdentity seeds the caller identity. Auth uses it and tests call it directly.
func WithIdentity(ctx context.Context, userID, ownerID uuid.UUID, role enums.ActorRole) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID.String())
	ctx = context.WithValue(ctx, ctxOwnerID, ownerID)
	return context.WithValue(ctx, ctxRole, role)
}
