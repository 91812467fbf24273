package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/lib/pq"

	"github.com/whisperline/whisperline-backend/internal/middleware"
	"github.com/whisperline/whisperline-backend/internal/services"
	"github.com/whisperline/whisperline-backend/pkg/utils"
)

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is step one of login: password check, then OTP email.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyOTPRequest is step two of login: the emailed passcode.
type VerifyOTPRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

// AuthResponse is the JSON envelope for all auth endpoints.
type AuthResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	OTPSent  bool   `json:"otp_sent,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
}

func writeAuthJSON(w http.ResponseWriter, status int, resp AuthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Register handles account creation.
func Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthJSON(w, http.StatusBadRequest, AuthResponse{Error: "Invalid request body."})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeAuthJSON(w, http.StatusBadRequest, AuthResponse{Error: "Username, email, and password are required."})
		return
	}
	if err := utils.ValidateUsername(req.Username); err != nil {
		writeAuthJSON(w, http.StatusBadRequest, AuthResponse{Error: err.Error()})
		return
	}

	user, err := services.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			writeAuthJSON(w, http.StatusConflict, AuthResponse{Error: "Username or email already taken."})
			return
		}
		log.Printf("failed to create user: %v", err)
		writeAuthJSON(w, http.StatusInternalServerError, AuthResponse{Error: "Registration failed."})
		return
	}

	writeAuthJSON(w, http.StatusCreated, AuthResponse{Success: true, Username: user.Username})
}

// Login verifies the password and emails a one-time passcode. The session is
// not created until the passcode is verified.
func Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthJSON(w, http.StatusBadRequest, AuthResponse{Error: "Invalid request body."})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAuthJSON(w, http.StatusBadRequest, AuthResponse{Error: "Username and password are required."})
		return
	}

	user, err := services.VerifyUserPassword(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeAuthJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Invalid username or password."})
			return
		}
		log.Printf("login lookup failed: %v", err)
		writeAuthJSON(w, http.StatusInternalServerError, AuthResponse{Error: "Login failed."})
		return
	}

	if err := otpService.IssueCode(r.Context(), user); err != nil {
		if errors.Is(err, services.ErrNotificationFailed) {
			// The issued code stays valid for its window; the user can retry.
			writeAuthJSON(w, http.StatusBadGateway, AuthResponse{Error: "Could not send your login code. Please try again."})
			return
		}
		log.Printf("OTP issue failed: %v", err)
		writeAuthJSON(w, http.StatusInternalServerError, AuthResponse{Error: "Login failed."})
		return
	}

	writeAuthJSON(w, http.StatusOK, AuthResponse{Success: true, OTPSent: true})
}

// VerifyOTP checks the emailed passcode, issues a fresh session key identity
// and a session token.
func VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthJSON(w, http.StatusBadRequest, AuthResponse{Error: "Invalid request body."})
		return
	}

	user, err := services.FindUserByUsername(r.Context(), req.Username)
	if err != nil {
		log.Printf("verify_otp lookup failed: %v", err)
		writeAuthJSON(w, http.StatusInternalServerError, AuthResponse{Error: "Verification failed."})
		return
	}
	if user == nil {
		writeAuthJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Invalid username or password."})
		return
	}

	if _, err := otpService.Verify(r.Context(), user, strings.TrimSpace(req.OTP)); err != nil {
		if errors.Is(err, services.ErrInvalidOrExpiredCode) {
			writeAuthJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Invalid or expired code."})
			return
		}
		log.Printf("verify_otp failed: %v", err)
		writeAuthJSON(w, http.StatusInternalServerError, AuthResponse{Error: "Verification failed."})
		return
	}

	token, err := services.CreateSession(user.ID)
	if err != nil {
		log.Printf("session creation failed: %v", err)
		writeAuthJSON(w, http.StatusInternalServerError, AuthResponse{Error: "Verification failed."})
		return
	}

	writeAuthJSON(w, http.StatusOK, AuthResponse{Success: true, Username: user.Username, Token: token})
}

// Logout invalidates the caller's session and revokes their key identity, so
// no key material from the ended session stays reachable.
func Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.AuthenticatedUserID(r.Context())
	if !ok {
		writeAuthJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Not logged in."})
		return
	}

	if user, err := services.GetUserByID(r.Context(), userID); err == nil && user != nil {
		keyRing.Revoke(user.Username)
	}
	services.InvalidateUserSessions(userID)

	writeAuthJSON(w, http.StatusOK, AuthResponse{Success: true})
}

// Me returns the authenticated caller's identity.
func Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.AuthenticatedUserID(r.Context())
	if !ok {
		writeAuthJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Not logged in."})
		return
	}

	user, err := services.GetUserByID(r.Context(), userID)
	if err != nil || user == nil {
		writeAuthJSON(w, http.StatusUnauthorized, AuthResponse{Error: "Not logged in."})
		return
	}

	writeAuthJSON(w, http.StatusOK, AuthResponse{Success: true, Username: user.Username})
}
