package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

type contextKey string

const actorKey contextKey = "actor"

// Authenticator turns bearer tokens into an Actor on the request context.
type Authenticator struct {
	Verifier    Verifier
	AgencyClaim string
	RoleClaim   string
	Logger      *logger.Logger
}

func NewAuthenticator(v Verifier, agencyClaim, roleClaim string, log *logger.Logger) *Authenticator {
	return &Authenticator{Verifier: v, AgencyClaim: agencyClaim, RoleClaim: roleClaim, Logger: log}
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := a.authenticate(r)
			if err != nil {
				a.Logger.LogSecurity("AUTH_FAILED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// Optional lets anonymous callers through with an empty Actor. A token that
// is present but invalid is treated as absent.
func (a *Authenticator) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := a.authenticate(r)
			if err != nil {
				a.Logger.Debug("AUTH", fmt.Sprintf("Ignoring invalid token on public route: %v", err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request) (models.Actor, error) {
	raw, err := ExtractTokenFromRequest(r)
	if err != nil {
		return models.Actor{}, err
	}
	claims, err := a.Verifier.Verify(r.Context(), raw)
	if err != nil {
		return models.Actor{}, err
	}

	actor := models.Actor{
		UserID:   claimString(claims, "sub"),
		AgencyID: claimString(claims, a.AgencyClaim),
		Role:     claimString(claims, a.RoleClaim),
	}
	if actor.UserID == "" {
		return models.Actor{}, fmt.Errorf("subject claim not found in token")
	}
	return actor, nil
}

func claimString(claims map[string]interface{}, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the caller, or an empty Actor for anonymous requests.
func ActorFrom(ctx context.Context) models.Actor {
	if actor, ok := ctx.Value(actorKey).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}
