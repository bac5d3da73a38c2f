package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"cleansight/pkg/logger"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns the configuration the SPA front end needs
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"Retry-After",
			"X-Request-ID",
		},
		// session cookies ride along with every API call
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// CORS answers preflights and reflects allowed origins
func CORS(config *CORSConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}

	allowedOrigins := make(map[string]bool, len(config.AllowedOrigins))
	for _, origin := range config.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	wildcard := allowedOrigins["*"]

	allowedMethods := strings.Join(config.AllowedMethods, ", ")
	allowedHeaders := strings.Join(config.AllowedHeaders, ", ")
	exposedHeaders := strings.Join(config.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin != "" && (wildcard || allowedOrigins[origin]) {
				h.Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			} else if origin != "" {
				log.WithFields(map[string]interface{}{
					"origin": origin,
					"path":   r.URL.Path,
				}).Debug("CORS origin rejected")
			}

			if len(config.ExposedHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", exposedHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if len(config.AllowedMethods) > 0 {
					h.Set("Access-Control-Allow-Methods", allowedMethods)
				}
				if len(config.AllowedHeaders) > 0 {
					h.Set("Access-Control-Allow-Headers", allowedHeaders)
				}
				if config.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
