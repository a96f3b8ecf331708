package httpapi

import (
	"net/http"

	"neuronudge-backend-go/internal/services"
)

type SignupRequest struct {
	Username string  `json:"username" validate:"required,max=64"`
	Password string  `json:"password" validate:"required,min=4,max=128"`
	FullName *string `json:"fullName" validate:"omitempty,max=128"`
	Goal     *string `json:"goal" validate:"omitempty,max=256"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresAt    int64    `json:"expiresAt"`
	TokenType    string   `json:"tokenType"`
	User         *UserDTO `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func tokenResponse(session services.Session) TokenResponse {
	return TokenResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		TokenType:    "bearer",
		User:         toUserDTO(session.User),
	}
}

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if msg := requests.Struct(req); msg != "" {
		WriteError(w, http.StatusBadRequest, msg)
		return
	}
	user, err := s.Users.Signup(r.Context(), services.SignupInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.FullName,
		Goal:        req.Goal,
		Email:       req.Email,
	})
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]*UserDTO{"user": toUserDTO(user)})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	session, err := s.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, tokenResponse(session))
}

func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil || requests.Struct(req) != "" {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	session, err := s.Users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		WriteServiceError(w, s.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, tokenResponse(session))
}
