package middleware

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"refcache/internal/shared/config"
)

var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}

type CORSMiddleware struct {
	*cors.Cors
}

// NewCORS lets the configured frontends call the API. Credentials are not
// allowed: the API has no cookie session.
func NewCORS(cfg config.FrontendConfig, logger *slog.Logger) *CORSMiddleware {
	logger = logger.With("component", "cors", "operation", "setup")

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: corsMethods,
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         600,
		Debug:          cfg.CORSDebug,
	})

	logger.Info("CORS middleware configured",
		"allowed_origins", cfg.AllowedOrigins,
		"allowed_methods", corsMethods,
		"debug_mode", cfg.CORSDebug,
	)

	return &CORSMiddleware{c}
}

func (c *CORSMiddleware) Middleware(h http.Handler) http.Handler {
	return c.Cors.Handler(h)
}
