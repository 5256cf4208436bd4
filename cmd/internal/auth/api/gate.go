package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"waypoint/cmd/internal/auth/session"
	"waypoint/cmd/internal/metrics"
)

// Identity is the verified caller bound into the request context by the Gate.
type Identity struct {
	SubjectID string
}

type identityKey struct{}

// ContextWithIdentity returns ctx carrying id.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity bound by RequireAuth, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.SubjectID != ""
}

// Gate protects handlers with a session token check.
type Gate struct {
	log     *slog.Logger
	codec   session.Codec
	metrics metrics.Recorder
}

// NewGate builds a Gate. A nil recorder disables metrics.
func NewGate(log *slog.Logger, codec session.Codec, rec metrics.Recorder) *Gate {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Gate{log: log, codec: codec, metrics: rec}
}

// RequireAuth admits requests with a valid token and rejects all others with 401.
// The wrapped handler never runs for a rejected request.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, reason := tokenFromHeader(r.Header.Get("Authorization"))
		if raw == "" {
			g.reject(w, r, reason)
			return
		}

		claims, err := g.codec.Verify(raw)
		if err != nil {
			reason := session.Reason(err)
			if reason == "" {
				reason = "invalid"
			}
			g.reject(w, r, reason)
			return
		}

		g.metrics.RecordGate(metrics.ResultOK)
		ctx := ContextWithIdentity(r.Context(), Identity{SubjectID: claims.SubjectID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, reason string) {
	g.metrics.RecordGate(reason)
	g.log.Info("auth.gate.reject", "reason", reason, "path", r.URL.Path)
	WriteError(w, http.StatusUnauthorized, KindAuthorization, nil)
}

// Rejection reasons decided before the token is verified.
const (
	reasonMissing = "missing"
	reasonScheme  = "scheme"
)

// tokenFromHeader accepts "Bearer <token>" (any case) or a bare token.
// When no token can be taken it returns the rejection reason: missing for an
// absent or blank header, scheme for a header that is present but unusable.
func tokenFromHeader(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", reasonMissing
	}
	scheme, rest, found := strings.Cut(raw, " ")
	if !found {
		return raw, ""
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", reasonScheme
	}
	if tok := strings.TrimSpace(rest); tok != "" {
		return tok, ""
	}
	return "", reasonScheme
}
