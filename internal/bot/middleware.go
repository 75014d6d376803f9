package bot

import (
	"context"

	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/session"
)

// request is one incoming message. session is set by withSession.
type request struct {
	chatID   int64
	userID   int64
	username string
	name     string
	text     string
	command  string
	args     string

	session *session.Session
}

type handlerFunc func(ctx context.Context, req *request) error

type middleware func(handlerFunc) handlerFunc

func chain(h handlerFunc, mws ...middleware) handlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// withSession resolves the sender's session once and hands it to next.
func (b *Bot) withSession(next handlerFunc) handlerFunc {
	return func(ctx context.Context, req *request) error {
		s, err := b.sessions.Resolve(ctx, req.userID, req.username)
		if err != nil {
			return err
		}
		req.session = s
		return next(ctx, req)
	}
}

// requireToken stops before next when the user has no token yet.
func (b *Bot) requireToken(next handlerFunc) handlerFunc {
	return func(ctx context.Context, req *request) error {
		if req.session == nil || !req.session.CheckToken() {
			return domain.ErrNoToken
		}
		return next(ctx, req)
	}
}

// requireAdmin treats non-admins as if the command did not exist.
func (b *Bot) requireAdmin(next handlerFunc) handlerFunc {
	return func(ctx context.Context, req *request) error {
		if !b.isAdmin(req.userID) {
			b.logger.Warn("Admin command from non-admin", "user_id", req.userID, "text", req.text)
			return b.unknown(ctx, req)
		}
		return next(ctx, req)
	}
}
