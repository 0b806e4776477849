package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/rohits-web03/vectorvault/docs"
	"github.com/rohits-web03/vectorvault/internal/api/handlers"
	"github.com/rohits-web03/vectorvault/internal/api/middleware"
	"github.com/rohits-web03/vectorvault/internal/config"
)

func SetupRouter(h *handlers.Handler, authn middleware.Authenticator, cfg *config.Config, logger *slog.Logger) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(cfg.CorsConfig)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mainMux.Handle("GET /metrics", promhttp.Handler())
	mainMux.HandleFunc("GET /docs/", httpSwagger.WrapHandler)

	mainMux.HandleFunc("POST /auth/token", h.Login)
	mainMux.HandleFunc("POST /auth/logout", h.Logout)
	mainMux.HandleFunc("GET /auth/google/login", h.GoogleLogin)
	mainMux.HandleFunc("GET /auth/google/callback", h.GoogleCallback)

	// ---------- PROTECTED ROUTES ----------
	requireUser := middleware.AuthMiddleware(authn, logger)
	protected := func(pattern string, fn http.HandlerFunc) {
		mainMux.Handle(pattern, requireUser(fn))
	}
	admin := func(pattern string, fn http.HandlerFunc) {
		mainMux.Handle(pattern, requireUser(middleware.RequireAdmin(fn)))
	}

	protected("GET /auth/me", h.Me)

	protected("GET /files", h.ListFiles)
	protected("GET /files/{$}", h.ListFiles)
	protected("GET /files/{id}", h.GetFile)
	protected("DELETE /files/{id}", h.DeleteFile)
	protected("GET /files/{id}/download", h.DownloadFile)
	protected("POST /upload", h.UploadFile)
	protected("POST /upload/{$}", h.UploadFile)
	protected("POST /process/{id}", h.ProcessFile)
	protected("POST /query", h.Query)
	protected("POST /query/{$}", h.Query)

	// ---------- ADMIN ROUTES ----------
	admin("GET /admin/users", h.ListUsers)
	admin("POST /admin/users", h.CreateUser)
	admin("GET /admin/users/{id}", h.GetUser)
	admin("PUT /admin/users/{id}", h.UpdateUser)
	admin("DELETE /admin/users/{id}", h.DeleteUser)
	admin("PUT /admin/users/{id}/toggle-admin", h.ToggleAdmin)
	admin("PUT /admin/users/{id}/reset-password", h.ResetPassword)

	logger.Info("router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.Logger(logger)(handler)
	handler = middleware.Metrics(handler)
	return handler
}
