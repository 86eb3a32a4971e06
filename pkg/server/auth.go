package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/solarrouter/solarrouter/pkg/common"
	"github.com/solarrouter/solarrouter/pkg/log"
)

// tokenVerifier validates a raw bearer ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// configureVerifier runs OIDC discovery against the issuer and returns a
// verifier bound to the audience.
func configureVerifier(ctx context.Context, issuer, audience string) (tokenVerifier, error) {
	ctx = oidc.ClientContext(ctx, common.HTTPClient(time.Minute))
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: audience}).Verify, nil
}

// authMiddleware validates bearer tokens on mutating requests. Reads stay
// open; with no audience configured everything is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))
		r = r.WithContext(ctx)

		if s.bypassAuth || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token, err := s.verify(ctx, raw)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token verification failed", slog.Any("error", err))
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("subject", token.Subject)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
