package api

import (
	"encoding/json"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/config"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Response
	Token      string      `json:"token,omitempty"`
	ExpiresAt  string      `json:"expires_at,omitempty"`
	Role       access.Role `json:"role"`
	MechanicID string      `json:"mechanic_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// loginHandler accepts form or JSON credentials and returns a session
// token in the body and a cookie.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := readLogin(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.auth.Enabled() {
		p := access.Admin("Administrator")
		writeJSON(w, http.StatusOK, LoginResponse{Response: Response{OK: true}, Role: p.Role, Name: p.Name})
		return
	}

	p, err := s.auth.Check(req.Username, req.Password)
	if err != nil {
		s.metrics.AuthFailed()
		log.Printf("api: failed login for %q", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := s.auth.Issue(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	msg := "Admin login successful!"
	if !p.IsAdmin() {
		msg = "Welcome, " + p.Name + "!"
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Response:   Response{OK: true, Message: msg},
		Token:      token,
		ExpiresAt:  exp.UTC().Format(time.RFC3339),
		Role:       p.Role,
		MechanicID: p.MechanicID,
		Name:       p.Name,
	})
}

func readLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errInvalidJSON
		}
	} else {
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	return req, config.Validate(&req)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, Response{OK: true, Message: "You have been logged out."})
}
