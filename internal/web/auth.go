package web

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieName  = "session_manager_token"
	tokenIssuer = "ise-session-manager"
	tokenTTL    = 24 * time.Hour
)

// newRandomSecret returns n bytes of signing key material for deployments
// that did not configure one. Sessions signed with it die with the process.
func newRandomSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// signToken issues an HS256 operator session token.
func signToken(secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "operator",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

// parseToken validates an operator session token.
func parseToken(secret []byte, tokenString string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// authEnabled reports whether the UI requires a login.
func (s *Server) authEnabled() bool {
	return s.cfg.UIPassword != ""
}

// isAuthed reports whether the request carries a valid session cookie.
func (s *Server) isAuthed(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return parseToken(s.secret, c.Value) == nil
}

// requireAuth redirects unauthenticated requests to the login form.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAuthed(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) issueCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(tokenTTL.Seconds()),
	})
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// handleLoginPage renders the login form.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.isAuthed(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderPage(w, "login", &viewData{HideNav: true})
}

// handleLogin checks the shared operator password and issues the session
// cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form data", http.StatusBadRequest)
		return
	}

	password := r.Form.Get("password")
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.UIPassword)) != 1 {
		s.logger.Warn("Failed login attempt", "remote", r.RemoteAddr)
		s.renderPage(w, "login", &viewData{HideNav: true, Flash: "Invalid password.", FlashKind: "err"})
		return
	}

	token, err := signToken(s.secret, tokenTTL)
	if err != nil {
		s.logger.Error("Failed to sign session token", "error", err)
		s.renderPage(w, "login", &viewData{HideNav: true, Flash: "Failed to create session.", FlashKind: "err"})
		return
	}

	s.logger.Info("Operator logged in", "remote", r.RemoteAddr)
	s.issueCookie(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout drops the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Operator logged out", "remote", r.RemoteAddr)
	s.clearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
