package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/log"
)

// authedHandler receives the authenticated principal explicitly.
type authedHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// authed resolves the session before calling h. Pages without a session
// redirect to the login form; API calls get 401.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.principal(r)
		if err != nil {
			if isAPI(r) {
				JSONError(http.StatusUnauthorized, "authentication required").Write(w)
				return
			}
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		ctx := log.WithLogger(r.Context(), log.FromContext(r.Context()).With(log.FieldUser, p.Username))
		h(w, r.WithContext(ctx), p)
	}
}

// principal reads the session cookie, then a bearer token for API clients.
// A stale cookie does not hide a valid bearer token.
func (s *Server) principal(r *http.Request) (auth.Principal, error) {
	err := core.ErrUnauthorized
	if c, cerr := r.Cookie(auth.CookieName); cerr == nil && c.Value != "" {
		var p auth.Principal
		if p, err = s.auth.ParseToken(c.Value); err == nil {
			return p, nil
		}
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		if token := strings.TrimSpace(h[7:]); token != "" {
			return s.auth.ParseToken(token)
		}
	}
	return auth.Principal{}, err
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.principal(r); err == nil {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "login", viewData{
		Title:     "Log in",
		LoginForm: core.LoginForm{Next: r.URL.Query().Get("next")},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form core.LoginForm
	if err := ParseForm(w, r, &form); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	data := viewData{Title: "Log in", LoginForm: core.LoginForm{Username: form.Username, Next: form.Next}}

	if err := form.Validate(); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			data.Errors = ve.Fields
			s.render(w, r, http.StatusUnprocessableEntity, "login", data)
			return
		}
		s.serverError(w, r, err)
		return
	}

	p, err := s.auth.Login(ctx, form.Username, form.Password)
	if errors.Is(err, core.ErrInvalidCredentials) {
		log.FromContext(ctx).WarnContext(ctx, "Login failed", log.FieldUser, form.Username)
		data.Message = "Please enter a correct username and password."
		s.render(w, r, http.StatusUnauthorized, "login", data)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	token, err := s.auth.IssueToken(p)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	http.SetCookie(w, s.sessionCookie(token, s.auth.TTL()))
	log.FromContext(ctx).InfoContext(ctx, "User logged in", log.FieldUser, p.Username)
	http.Redirect(w, r, safeNext(form.Next), http.StatusSeeOther)
}

func (s *Server) handleLoginLimited(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusTooManyRequests, "login", viewData{
		Title:   "Log in",
		Message: "Too many login attempts. Please try again in a minute.",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.sessionCookie("", -time.Second))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// sessionCookie builds the session cookie; a negative ttl deletes it.
func (s *Server) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}
