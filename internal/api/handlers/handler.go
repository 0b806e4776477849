package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/rohits-web03/vectorvault/internal/api/middleware"
	"github.com/rohits-web03/vectorvault/internal/api/services"
	"github.com/rohits-web03/vectorvault/internal/auth"
	"github.com/rohits-web03/vectorvault/internal/config"
	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/pipeline"
	"github.com/rohits-web03/vectorvault/internal/repositories"
	"github.com/rohits-web03/vectorvault/internal/search"
)

type Deps struct {
	Files    repositories.FileRepository
	Objects  repositories.ObjectStore
	Pipeline *pipeline.Pipeline
	Search   *search.Service
	Auth     *auth.Service
	Google   *oauth2.Config // nil disables Google sign-in
	Config   *config.Config
	Logger   *slog.Logger
}

// Handler serves the REST API. Routes are registered in package api.
type Handler struct {
	files       repositories.FileRepository
	objects     repositories.ObjectStore
	pipeline    *pipeline.Pipeline
	search      *search.Service
	auth        *auth.Service
	google      *oauth2.Config
	userInfoURL string
	cfg         *config.Config
	logger      *slog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		files:       d.Files,
		objects:     d.Objects,
		pipeline:    d.Pipeline,
		search:      d.Search,
		auth:        d.Auth,
		google:      d.Google,
		userInfoURL: services.GoogleUserInfoURL,
		cfg:         d.Config,
		logger:      d.Logger,
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", errMalformed, r.PathValue("id"))
	}
	return id, nil
}

// currentUser is only called behind middleware.AuthMiddleware.
func currentUser(r *http.Request) *models.User {
	user, _ := middleware.UserFromContext(r.Context())
	return user
}
