package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/cleardeal/internal/identity"
	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

type AuthHandler struct {
	userRepo      repository.UserRepo
	revoked       *identity.Revocations
	jwtSecret     string
	tokenDuration time.Duration
	validate      *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
// revoked may be nil, in which case signout only tells the client to forget
// its token.
func NewAuthHandler(ur repository.UserRepo, revoked *identity.Revocations, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{userRepo: ur, revoked: revoked, jwtSecret: jwtSecret, tokenDuration: tokenDuration, validate: validator.New()}
}

type signupRequest struct {
	Address  string      `json:"address" validate:"required"`
	Role     models.Role `json:"role" validate:"required,oneof=client freelancer"`
	Name     string      `json:"name" validate:"required,max=100"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token   string      `json:"token"`
	Address string      `json:"address"`
	Role    models.Role `json:"role"`
}

type tokenClaims struct {
	Address string      `json:"address"`
	Role    models.Role `json:"role"`
	Email   string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid fields: "+err.Error())
		return
	}
	addr, err := identity.NormalizeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error hashing password")
		return
	}

	user := models.User{
		Address:      addr,
		Role:         req.Role,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if _, err := h.userRepo.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email or address already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "error creating user")
		return
	}

	h.issue(w, http.StatusCreated, &user)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}

	user, err := h.userRepo.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "credentials not found")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "credentials not found")
		return
	}

	h.issue(w, http.StatusOK, user)
}

// Signout revokes the presented token until it would have expired.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	if c, ok := CallerFromContext(r.Context()); ok && h.revoked != nil {
		h.revoked.Revoke(c.TokenID, c.ExpiresAt)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

func (h *AuthHandler) issue(w http.ResponseWriter, status int, u *models.User) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Address: u.Address,
		Role:    u.Role,
		Email:   u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.Address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenDuration)),
		},
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error signing token")
		return
	}

	writeJSON(w, status, authResponse{Token: tokenStr, Address: u.Address, Role: u.Role})
}
