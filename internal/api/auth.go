package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"chancai/internal/store"
	"chancai/internal/types"
)

const (
	authCookieName = "authKey"
	jwtIssuer      = "Chanc-ai"
	sessionTTL     = 7 * 24 * time.Hour
)

var jwtSecret = []byte(getJWTSecret())

func getJWTSecret() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}
	return "chancai-dev-secret-change-me"
}

type jwtClaims struct {
	UserID int    `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req types.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONMessage(w, "Solicitud inválida.", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Nombres == "" || req.Apellidos == "" || req.Email == "" || req.Pais == "" || req.Password == "" {
		writeJSONMessage(w, "Solicitud inválida.", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("hash password failed", "err", err)
		writeJSONMessage(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}

	user, err := s.store.CreateUser(ctx, req, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeJSONMessage(w, "El correo ya está registrado.", http.StatusConflict)
			return
		}
		s.logger.Error("create user failed", "err", err)
		writeJSONMessage(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}

	// Registration logs the account in right away.
	if err := s.setSessionCookie(w, r, user); err != nil {
		s.logger.Error("generate jwt failed", "err", err)
		writeJSONMessage(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}

	writeJSON(w, types.AuthResponse{
		Message: "¡Registro exitoso!",
		User:    types.UserInfo{Pais: user.Pais, Nombres: user.Nombres},
	}, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONMessage(w, "Solicitud inválida.", http.StatusBadRequest)
		return
	}

	user, storedHash, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		writeJSONMessage(w, "Credenciales inválidas.", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password)); err != nil {
		writeJSONMessage(w, "Credenciales inválidas.", http.StatusUnauthorized)
		return
	}

	if err := s.setSessionCookie(w, r, user); err != nil {
		s.logger.Error("generate jwt failed", "err", err)
		writeJSONMessage(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}

	writeJSON(w, types.AuthResponse{
		Message: "Inicio de sesión exitoso.",
		User:    types.UserInfo{Pais: user.Pais, Nombres: user.Nombres},
	}, http.StatusOK)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSONMessage(w, "Sesión cerrada.", http.StatusOK)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		writeJSON(w, types.SessionResponse{LoggedIn: false}, http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		// Stale cookie pointing at a deleted account.
		writeJSON(w, types.SessionResponse{LoggedIn: false}, http.StatusOK)
		return
	}

	writeJSON(w, types.SessionResponse{
		LoggedIn: true,
		User:     &types.UserInfo{Pais: user.Pais, Nombres: user.Nombres},
	}, http.StatusOK)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, user *types.Usuario) error {
	token, err := generateJWT(user.ID, user.Email)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func generateJWT(userID int, email string) (string, error) {
	claims := jwtClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func parseJWT(tokenString string) (*jwtClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwtClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// authMiddleware rejects requests without a valid session cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			writeJSONMessage(w, "No autorizado.", http.StatusUnauthorized)
			return
		}

		claims, err := parseJWT(cookie.Value)
		if err != nil {
			// Expired or tampered token, drop it so the browser stops sending it.
			http.SetCookie(w, &http.Cookie{
				Name:   authCookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})
			writeJSONMessage(w, "No autorizado.", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuthMiddleware extracts the user when a valid cookie is
// present but never rejects; report generation and session status serve
// anonymous callers too.
func (s *Server) optionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err == nil {
			if claims, err := parseJWT(cookie.Value); err == nil {
				ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey string

const userIDKey contextKey = "userID"

func getUserIDFromContext(ctx context.Context) int {
	if userID, ok := ctx.Value(userIDKey).(int); ok {
		return userID
	}
	return 0
}
