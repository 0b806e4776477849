package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohits-web03/vectorvault/internal/api/middleware"
	"github.com/rohits-web03/vectorvault/internal/api/services"
	"github.com/rohits-web03/vectorvault/internal/auth"
	"github.com/rohits-web03/vectorvault/internal/utils"
)

const stateCookie = "oauth_state"

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login godoc
// @Summary Exchange email and password for a bearer token
// @Tags Auth
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Email"
// @Param password formData string true "Password"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} utils.ErrorPayload
// @Failure 403 {object} utils.ErrorPayload
// @Router /auth/token [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid form", errMalformed), "User")
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if email == "" || password == "" {
		h.writeError(w, r, fmt.Errorf("%w: username and password are required", errMalformed), "User")
		return
	}

	session, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		h.writeError(w, r, err, "User")
		return
	}
	h.setTokenCookie(w, session.Token, session.ExpiresAt)
	utils.JSONResponse(w, http.StatusOK, TokenResponse{AccessToken: session.Token, TokenType: "bearer"})
}

// Me godoc
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} utils.ErrorPayload
// @Router /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	utils.JSONResponse(w, http.StatusOK, currentUser(r))
}

// Logout godoc
// @Summary Clear the session cookie
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.MessagePayload
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.TokenCookie)
	utils.JSONResponse(w, http.StatusOK, utils.MessagePayload{Message: "Logged out successfully"})
}

// GoogleLogin godoc
// @Summary Start Google sign-in
// @Description Only accounts that already exist can sign in with Google.
// @Tags Auth
// @Success 307
// @Failure 404 {object} utils.ErrorPayload
// @Router /auth/google/login [get]
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		utils.ErrorResponse(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}
	state, err := newState(loginFlow)
	if err != nil {
		h.writeError(w, r, err, "State")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		Secure:   h.cfg.IsProduction(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback godoc
// @Summary Google sign-in callback
// @Tags Auth
// @Param state query string true "OAuth state"
// @Param code query string true "Authorization code"
// @Success 307
// @Failure 400 {object} utils.ErrorPayload
// @Router /auth/google/callback [get]
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		utils.ErrorResponse(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}
	var expected string
	if c, err := r.Cookie(stateCookie); err == nil {
		expected = c.Value
	}
	h.clearCookie(w, stateCookie)

	st, err := verifyState(r.FormValue("state"), expected)
	if err != nil || st.Flow != loginFlow {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	if r.FormValue("error") != "" {
		h.redirectFrontend(w, r, "/login", "error", "access_denied")
		return
	}

	token, err := h.google.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		h.logger.Warn("google code exchange failed", "error", err)
		h.redirectFrontend(w, r, "/login", "error", "exchange_failed")
		return
	}
	googleUser, err := h.fetchGoogleUser(r, h.google.Client(r.Context(), token))
	if err != nil {
		h.logger.Warn("google userinfo failed", "error", err)
		h.redirectFrontend(w, r, "/login", "error", "userinfo_failed")
		return
	}
	if !googleUser.VerifiedEmail {
		h.redirectFrontend(w, r, "/login", "error", "email_not_verified")
		return
	}

	session, err := h.auth.LoginVerified(r.Context(), googleUser.Email)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.redirectFrontend(w, r, "/login", "error", "user_not_found")
		return
	case errors.Is(err, auth.ErrInactiveUser):
		h.redirectFrontend(w, r, "/login", "error", "inactive_user")
		return
	case err != nil:
		h.writeError(w, r, err, "User")
		return
	}
	h.setTokenCookie(w, session.Token, session.ExpiresAt)
	h.redirectFrontend(w, r, "/", "status", "success_login")
}

func (h *Handler) fetchGoogleUser(r *http.Request, client *http.Client) (*services.GoogleUser, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var user services.GoogleUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return &user, nil
}

func (h *Handler) redirectFrontend(w http.ResponseWriter, r *http.Request, path, key, value string) {
	target := strings.TrimRight(h.cfg.FrontendURL, "/") + path + "?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	isProd := h.cfg.IsProduction()

	// SameSite cookie policy
	sameSite := http.SameSiteLaxMode
	if isProd {
		sameSite = http.SameSiteNoneMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		Secure:   isProd,
		HttpOnly: true,
		SameSite: sameSite,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	path := "/"
	if name == stateCookie {
		path = "/auth/google"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1, // maxAge < 0 deletes the cookie
		Secure:   h.cfg.IsProduction(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
