package main

import (
	"net/http"

	"escrowflow/auth"
	"escrowflow/party"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(profileOf(*user)))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access":  res.Tokens.Access,
		"refresh": res.Tokens.Refresh,
		"user":    newUserResponse(profileOf(res.User)),
	})
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	access, err := s.authService.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	p, err := s.partyService.Get(r.Context(), caller, caller.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(p))
}

// handleProfileUpdate only lets a party rename themselves, whatever their role.
func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var req party.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	caller := callerFrom(r)
	caller.Superuser = false
	p, err := s.partyService.Update(r.Context(), caller, caller.UserID, party.UpdateRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(p))
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req auth.PasswordChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.authService.ChangePassword(r.Context(), callerFrom(r).UserID, req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.partyService.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(users, newUserResponse))
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	p, err := s.partyService.Get(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(p))
}

func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	var req party.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.partyService.Update(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(p))
}
