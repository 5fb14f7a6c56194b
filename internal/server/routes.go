package server

import (
	"net/http"

	jsonwriter "github.com/dgellow/customer-auth/internal/json"
)

// RoutesConfig holds what NewHandler mounts besides the auth endpoints
type RoutesConfig struct {
	Name           string
	AllowedOrigins []string
	Health         http.Handler
	Metrics        http.Handler

	// RateLimit applies to /auth/* only; zero disables it
	RequestsPerSecond float64
	Burst             int

	// ClientIP decides which forwarding headers to believe; nil means none
	ClientIP *ClientIPResolver
}

// NewHandler builds the complete HTTP handler with routing and middleware
func NewHandler(h *AuthHandlers, cfg RoutesConfig) http.Handler {
	authMiddleware := []MiddlewareFunc{NewCORSMiddleware(cfg.AllowedOrigins)}
	if cfg.RequestsPerSecond > 0 {
		authMiddleware = append(authMiddleware, NewRateLimitMiddleware(cfg.RequestsPerSecond, cfg.Burst, cfg.ClientIP))
	}
	route := func(handler http.HandlerFunc) http.Handler {
		return ChainMiddleware(handler, authMiddleware...)
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/signin", route(methods(h.SignInHandler, http.MethodGet)))
	mux.Handle("/auth/callback", route(methods(h.CallbackHandler, http.MethodGet)))
	mux.Handle("/auth/signout", route(methods(h.SignOutHandler, http.MethodGet, http.MethodPost)))
	mux.Handle("/auth/session", route(methods(h.SessionHandler, http.MethodGet)))
	mux.Handle("/auth/token", route(methods(h.TokenHandler, http.MethodGet)))

	if cfg.Health != nil {
		mux.Handle("GET /healthz", cfg.Health)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	name := cfg.Name
	if name == "" {
		name = "http"
	}
	return ChainMiddleware(mux,
		NewLoggerMiddleware(name),
		NewRecoverMiddleware(name),
	)
}

// methods rejects requests whose method is not listed. OPTIONS is left to
// the CORS middleware in front.
func methods(next http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range allowed {
			if r.Method == m {
				next(w, r)
				return
			}
		}
		jsonwriter.WriteMethodNotAllowed(w, "")
	}
}
