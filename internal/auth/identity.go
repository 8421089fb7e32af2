// Package auth определяет личность автора запроса по JWT в заголовке Authorization.
package auth

import "context"

// Identity - аутентифицированный пользователь.
type Identity struct {
	UserID  string
	Name    string
	Email   string
	IsStaff bool
}

type contextKey struct{}

// WithIdentity кладёт личность в контекст.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext возвращает личность или nil для анонимного запроса.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
