package features

import (
	"context"

	"github.com/google/uuid"
)

// SessionCookie carries the anonymous rollout seed for the browser session.
const SessionCookie = "feature_rollout_session"

type sessionKey struct{}

// WithSession attaches a rollout session id to ctx. Anonymous callers are
// bucketed by this id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

func NewSessionID() string {
	return uuid.NewString()
}
