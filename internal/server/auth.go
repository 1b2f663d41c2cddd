package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/saravenpi/whopchat/internal/models"
	"github.com/saravenpi/whopchat/internal/repository"
)

// CookieName carries the signed session token.
const CookieName = "accessToken"

const userKey = "user"

type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t tokens) issue(userID string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

func (t tokens) parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// requireAuth resolves the session token to a user and stores it on the
// context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFromRequest(c)
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "Unauthorized. Please log in.")
			return
		}

		userID, err := s.tokens.parse(raw)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, "Session expired. Please log in again.")
				return
			}
			s.logger.Debug("invalid token", zap.Error(err))
			abortWithError(c, http.StatusUnauthorized, "Unauthorized. Please log in.")
			return
		}

		user, err := s.repo.UserByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				abortWithError(c, http.StatusUnauthorized, "Unauthorized. Please log in.")
				return
			}
			s.logger.Error("failed to load session user", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Internal server error")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userKey).(*models.User)
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Avatar   string `json:"avatar"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) setSessionCookie(c *gin.Context, userID string) bool {
	token, expires, err := s.tokens.issue(userID)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return false
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(time.Until(expires).Seconds()), "/", "", s.cfg.SecureCookies, true)
	return true
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := s.repo.CreateUser(c.Request.Context(), repository.NewUser{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Avatar:       req.Avatar,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			respondError(c, http.StatusBadRequest, "Email already exists")
			return
		}
		s.logger.Error("failed to register user", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !s.setSessionCookie(c, user.ID) {
		return
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{"message": "User created & login successful", "user": user})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	user, hash, err := s.repo.UserByEmail(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("failed to load user", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil || user.IsAI || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !s.setSessionCookie(c, user.ID) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User login successful", "user": user})
}

func (s *Server) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", s.cfg.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "User logout successful"})
}

func (s *Server) authStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Authenticated user", "user": currentUser(c)})
}
