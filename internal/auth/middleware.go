package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const (
	claimsKey   contextKey = "auth_claims"
	subjectKey  contextKey = "auth_subject"
	reporterKey contextKey = "auth_reporter"
)

// ReporterHeader carries a reporter token.
const ReporterHeader = "X-Reporter-Token"

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// SubjectFromContext extracts the subject ID string from request context.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// ReporterFromContext extracts the reporter token from request context.
func ReporterFromContext(ctx context.Context) *ReporterToken {
	tok, _ := ctx.Value(reporterKey).(*ReporterToken)
	return tok
}

// WithClaims returns a context carrying claims. Used by tests and
// WebSocket handlers that authenticate outside the middleware chain.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, subjectKey, claims.Subject)
}

// AuthenticateProctor returns middleware that validates proctor JWT tokens.
func AuthenticateProctor(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmProctor)
}

// AuthenticateStudent returns middleware that validates student JWT tokens.
func AuthenticateStudent(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return authenticateRealm(jwtMgr, RealmStudent)
}

// RequireRole returns middleware that checks the proctor role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no auth context")
				return
			}
			if !roleSet[claims.Role] {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelf rejects student tokens whose subject differs from the
// student id the route addresses.
func RequireSelf(studentID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SubjectFromContext(r.Context()) != studentID(r) {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "token does not belong to this student")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireReporterScope returns middleware that validates the reporter token
// in X-Reporter-Token and checks it grants scope.
func RequireReporterScope(mgr *ReporterAuthManager, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(ReporterHeader)
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+ReporterHeader+" header")
				return
			}
			tok, err := mgr.ValidateReporterToken(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			if !tok.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "reporter token lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), reporterKey, tok)))
		})
	}
}

func authenticateRealm(jwtMgr *JWTManager, realm Realm) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr, realm)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// extractAndValidate reads a bearer token, falling back to the access_token
// query parameter for WebSocket upgrades where browsers cannot set headers.
func extractAndValidate(r *http.Request, jwtMgr *JWTManager, realm Realm) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return jwtMgr.ValidateTokenForRealm(q, realm)
		}
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateTokenForRealm(parts[1], realm)
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%q,"message":%q}`, code, msg)
}
