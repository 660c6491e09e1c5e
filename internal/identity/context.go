package identity

import "context"

// Role grants capabilities to an authenticated actor.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID   string
	Role Role
}

// CanAssign reports whether the actor may reassign conversations.
func (a Actor) CanAssign() bool {
	return a.Role == RoleAdmin || a.Role == RoleOperator
}

type ctxKey string

const actorKey ctxKey = "novasend.actor"

// WithActor stores the actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.ID != ""
}
