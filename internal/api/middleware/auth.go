package middleware

import (
	"context"
	"net/http"
	"todo_service/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const PrincipalCtxKey contextKey = "principal"

// TokenVerifier validates a bearer credential and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// PrincipalResolver looks up the account named by a verified token subject.
type PrincipalResolver func(ctx context.Context, subject string) (*model.User, error)

// Authenticate attaches the caller's principal to the request context when a
// valid bearer credential names an existing account. It never rejects a
// request; anonymous callers pass through and the policy gate decides.
func Authenticate(verifier TokenVerifier, resolve PrincipalResolver, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetPrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token := jwtauth.TokenFromHeader(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				log.WithError(err).Debug("bearer token rejected")
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolve(r.Context(), subject)
			if err != nil || user == nil {
				log.WithField("subject", subject).Debug("token subject does not resolve to an account")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user.Principal())))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, PrincipalCtxKey, p)
}

// Helper to get the authenticated principal from context
func GetPrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(PrincipalCtxKey).(*model.Principal)
	return p, ok && p != nil
}
