package authtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

const maxBodyBytes = 1 << 20

type success struct {
	OK      bool   `json:"ok,omitempty"`
	Success string `json:"success,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func principal(r *http.Request) httpx.Principal {
	p, _ := httpx.PrincipalFromContext(r.Context())
	return p
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Username == "" || in.Password == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Missing credentials")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findUser(in.Username)
	if u == nil || u.passwordHash == "" || cryptox.VerifyPassword(in.Password, u.passwordHash) != nil {
		slogx.FromContext(r.Context()).Info("login rejected", "username", in.Username)
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Invalid username or password")
		return
	}

	sess, err := s.issue(u, "", "local")
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

// findUser looks a user up by id or email. The caller holds s.mu.
func (s *Server) findUser(login string) *User {
	if u, ok := s.users[login]; ok {
		return u
	}
	for _, u := range s.users {
		if u.Email != "" && strings.EqualFold(u.Email, login) {
			return u
		}
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name            string `json:"name"`
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	problems := map[string][]string{}
	if in.Email == "" {
		problems["email"] = append(problems["email"], "Email can't be blank")
	} else if s.findUser(in.Email) != nil {
		problems["email"] = append(problems["email"], "Email already in use")
	}
	if in.Username != "" && s.users[in.Username] != nil {
		problems["username"] = append(problems["username"], "Username already in use")
	}
	if in.Password == "" {
		problems["password"] = append(problems["password"], "Password can't be blank")
	}
	if in.Password != in.ConfirmPassword {
		problems["confirmPassword"] = append(problems["confirmPassword"], "Confirm password does not match password")
	}
	if len(problems) > 0 {
		httpx.WriteValidationError(w, problems)
		return
	}

	id := in.Username
	if id == "" {
		id = strings.ToLower(in.Email)
	}
	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	u := &User{ID: id, Name: in.Name, Email: in.Email, Roles: []string{"user"}, passwordHash: hash}
	s.users[id] = u
	s.verifyTokens[cryptox.MustGenerateToken(cryptox.TokenSize128)] = id

	if !s.autoLogin {
		httpx.WriteJSON(w, http.StatusCreated, success{Success: "User created."})
		return
	}
	sess, err := s.issue(u, "", "local")
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	s.mu.Lock()
	delete(s.sessions, p.SessionID)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, success{Success: "Logged out"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	s.dropSessions(principal(r).UserID, "")
	httpx.WriteJSON(w, http.StatusOK, success{Success: "Logged out"})
}

func (s *Server) handleLogoutOthers(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	s.dropSessions(p.UserID, p.SessionID)
	httpx.WriteJSON(w, http.StatusOK, success{Success: "Other sessions logged out"})
}

// dropSessions ends every session of userID except keep.
func (s *Server) dropSessions(userID, keep string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, is := range s.sessions {
		if is.userID == userID && jti != keep {
			delete(s.sessions, jti)
		}
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[p.SessionID]
	u := s.users[p.UserID]
	if !ok || u == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	sess, err := s.issue(u, old.password, "")
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	delete(s.sessions, p.SessionID)
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.verifyTokens[token]
	if !ok || s.users[id] == nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid token", "")
		return
	}
	delete(s.verifyTokens, token)
	s.users[id].EmailVerified = true
	httpx.WriteJSON(w, http.StatusOK, success{Success: "Email verified"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	if u := s.findUser(in.Email); u != nil {
		s.resetTokens[cryptox.MustGenerateToken(cryptox.TokenSize128)] = u.ID
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, success{Success: "Password reset link sent."})
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token           string `json:"token"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Password == "" || in.Password != in.ConfirmPassword {
		httpx.WriteValidationError(w, map[string][]string{"confirmPassword": {"Confirm password does not match password"}})
		return
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.resetTokens[in.Token]
	u := s.users[id]
	if !ok || u == nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid token", "")
		return
	}
	delete(s.resetTokens, in.Token)
	u.passwordHash = hash

	sess, err := s.issue(u, "", "local")
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[principal(r).UserID]
	if u.passwordHash != "" && cryptox.VerifyPassword(in.CurrentPassword, u.passwordHash) != nil {
		httpx.WriteValidationError(w, map[string][]string{"currentPassword": {"Current password is incorrect"}})
		return
	}
	if in.NewPassword == "" || in.NewPassword != in.ConfirmPassword {
		httpx.WriteValidationError(w, map[string][]string{"confirmPassword": {"Confirm password does not match password"}})
		return
	}

	hash, err := cryptox.HashPassword(in.NewPassword)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	u.passwordHash = hash
	httpx.WriteJSON(w, http.StatusOK, success{Success: "Password changed"})
}

func (s *Server) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		NewEmail string `json:"newEmail"`
	}
	if !decode(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.NewEmail == "" {
		httpx.WriteValidationError(w, map[string][]string{"newEmail": {"Email can't be blank"}})
		return
	}
	if other := s.findUser(in.NewEmail); other != nil {
		httpx.WriteValidationError(w, map[string][]string{"newEmail": {"Email already in use"}})
		return
	}
	u := s.users[principal(r).UserID]
	u.Email = in.NewEmail
	u.EmailVerified = false
	httpx.WriteJSON(w, http.StatusOK, success{Success: "Email changed"})
}

func (s *Server) handleValidateUsername(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "username")

	s.mu.Lock()
	_, taken := s.users[name]
	s.mu.Unlock()

	if taken {
		httpx.WriteError(w, http.StatusConflict, "Username already in use", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success{OK: true})
}

func (s *Server) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	s.mu.Lock()
	taken := s.findUser(email) != nil
	s.mu.Unlock()

	if taken {
		httpx.WriteError(w, http.StatusConflict, "Email already in use", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success{OK: true})
}

// socialUser returns the account tied to provider, creating it on first use.
// The caller holds s.mu.
func (s *Server) socialUser(provider string) *User {
	id := provider + "_user"
	u, ok := s.users[id]
	if !ok {
		u = &User{ID: id, Roles: []string{"user"}, Providers: []string{provider}}
		s.users[id] = u
	}
	return u
}

func (s *Server) handleProviderPopup(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !s.supportsProvider(provider) {
		httpx.WriteError(w, http.StatusNotFound, "Not found", "")
		return
	}

	s.mu.Lock()
	sess, err := s.issue(s.socialUser(provider), "", provider)
	s.mu.Unlock()
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	if s.callbackURL == "" {
		httpx.WriteJSON(w, http.StatusOK, sess)
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	s.redirect(w, r, url.Values{"session": {string(raw)}})
}

func (s *Server) handleProviderToken(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !s.supportsProvider(provider) {
		httpx.WriteError(w, http.StatusNotFound, "Not found", "")
		return
	}

	var in struct {
		AccessToken string `json:"access_token"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.AccessToken != AccessToken(provider) {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Invalid access token")
		return
	}

	s.mu.Lock()
	sess, err := s.issue(s.socialUser(provider), "", provider)
	s.mu.Unlock()
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) link(userID, provider string) error {
	if !s.supportsProvider(provider) {
		return errors.New("unsupported provider")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	if !slices.Contains(u.Providers, provider) {
		u.Providers = append(u.Providers, provider)
	}
	return nil
}

func (s *Server) handleLinkPopup(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if err := s.link(principal(r).UserID, provider); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Not found", "")
		return
	}

	if s.callbackURL == "" {
		httpx.WriteJSON(w, http.StatusOK, success{Success: popup.LinkedMessage(provider)})
		return
	}
	s.redirect(w, r, url.Values{"link": {provider}})
}

func (s *Server) handleTokenLink(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var in struct {
		AccessToken string `json:"access_token"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.AccessToken != AccessToken(provider) {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "Invalid access token")
		return
	}
	if err := s.link(principal(r).UserID, provider); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Not found", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, success{Success: popup.LinkedMessage(provider)})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[principal(r).UserID]
	if !slices.Contains(u.Providers, provider) {
		httpx.WriteError(w, http.StatusBadRequest, "Provider not linked", "")
		return
	}
	u.Providers = slices.DeleteFunc(u.Providers, func(p string) bool { return p == provider })
	httpx.WriteJSON(w, http.StatusOK, success{Success: popup.Capitalize(provider) + " unlinked"})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user_id": p.UserID, "roles": p.Roles})
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, q url.Values) {
	target := s.callbackURL
	if strings.Contains(target, "?") {
		target += "&" + q.Encode()
	} else {
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
