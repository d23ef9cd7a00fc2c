// Shared context helpers for API middleware.
package api

import (
	"context"

	"github.com/mkersic/relay/internal/api/ctxkeys"
)

// WithUserID adds user_id to the request context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxkeys.UserID, userID)
}

// GetUserID retrieves user_id from context.
func GetUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(ctxkeys.UserID).(string)
	if !ok || userID == "" {
		return "", ErrMissingUserID
	}
	return userID, nil
}
