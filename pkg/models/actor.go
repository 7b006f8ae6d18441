package models

import "context"

type actorKey struct{}

// WithActor returns a copy of ctx in which user is the acting user. A nil user
// shadows any actor set on a parent context.
func WithActor(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ActorFrom returns the acting user stored in ctx, or nil.
func ActorFrom(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	user, _ := ctx.Value(actorKey{}).(*User)
	return user
}
