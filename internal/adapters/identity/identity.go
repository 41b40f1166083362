// Package identity supplies the signed-in user to the submission controller.
package identity

import (
	"context"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

type ctxKey struct{}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, userID domain.UserID) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(ctxKey{}).(domain.UserID)
	return id, ok && id != ""
}

// ContextProvider reads the user the transport placed in the context.
// Fallback, when set, is used for requests without one (local mode).
type ContextProvider struct {
	Fallback domain.UserID
}

func (p ContextProvider) CurrentUser(ctx context.Context) (domain.UserID, error) {
	if id, ok := UserFromContext(ctx); ok {
		return id, nil
	}
	if p.Fallback != "" {
		return p.Fallback, nil
	}
	return "", domain.ErrNotAuthenticated
}

// Static always answers with the same user; an empty user means signed out.
type Static domain.UserID

func (s Static) CurrentUser(context.Context) (domain.UserID, error) {
	if s == "" {
		return "", domain.ErrNotAuthenticated
	}
	return domain.UserID(s), nil
}
