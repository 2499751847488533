package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context. It returns nil when
// the session middleware did not run.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// PopFlash consumes the next flash message of the request session, if any.
func PopFlash(ctx context.Context) *FlashMessage {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return nil
	}
	return sess.PopFlash()
}
