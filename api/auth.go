package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/fieldops/pkg/repository"
)

type AuthHandler struct {
	staffRepo     repository.StaffRepo
	jwtSecret     string
	tokenDuration time.Duration
	limiter       *keyedLimiter
}

// NewAuthHandler creates an AuthHandler. Sign-in attempts are throttled per
// staff code.
func NewAuthHandler(sr repository.StaffRepo, jwtSecret string, tokenDuration time.Duration, ratePerMinute, burst int) *AuthHandler {
	return &AuthHandler{
		staffRepo:     sr,
		jwtSecret:     jwtSecret,
		tokenDuration: tokenDuration,
		limiter:       newKeyedLimiter(ratePerMinute, burst),
	}
}

type pinSigninRequest struct {
	StaffCode string `json:"staff_code"`
	PIN       string `json:"pin"`
}

type authResponse struct {
	Token     string    `json:"token"`
	StaffID   string    `json:"staff_id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HashPIN returns the bcrypt hash stored for a staff PIN.
func HashPIN(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	return string(b), err
}

// SigninPIN exchanges a staff code and PIN for a session token. Every
// sign-in starts a new session id, which the audit log records.
func (h *AuthHandler) SigninPIN(w http.ResponseWriter, r *http.Request) {
	var req pinSigninRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.StaffCode = strings.TrimSpace(req.StaffCode)
	if req.StaffCode == "" || req.PIN == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	if !h.limiter.allow(req.StaffCode) {
		http.Error(w, "Too many sign-in attempts", http.StatusTooManyRequests)
		return
	}

	staff, err := h.staffRepo.GetStaffByCode(r.Context(), req.StaffCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if staff == nil || !staff.Active {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(staff.PINHash), []byte(req.PIN)) != nil {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}

	sessionID := uuid.NewString()
	expires := time.Now().Add(h.tokenDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"staff_id":   staff.ID,
		"session_id": sessionID,
		"name":       staff.Name,
		"exp":        expires.Unix(),
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	logger.Info("staff signed in", "staff_id", staff.ID, "session_id", sessionID)
	writeJSON(w, authResponse{Token: tokenStr, StaffID: staff.ID, SessionID: sessionID, Name: staff.Name, ExpiresAt: expires.UTC()}, http.StatusOK)
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	// tokens are stateless; the client drops its copy
	writeJSON(w, map[string]string{"message": "signed out"}, http.StatusOK)
}
