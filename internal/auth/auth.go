package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/poolshare/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidInput reports a malformed username or password
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials reports an unknown user or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken reports a token that is malformed, expired or badly signed
	ErrInvalidToken = errors.New("invalid token")
)

const (
	maxUsernameLen = 50
	maxPasswordLen = 72 // bcrypt input limit
)

// UserStore persists user accounts. CreateUser returns models.ErrUserExists
// for a taken username and GetUserByUsername returns models.ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService handles user authentication
type AuthService struct {
	Users  UserStore
	Secret []byte
	TTL    time.Duration
	Cost   int

	now func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		Users:  users,
		Secret: []byte(secret),
		TTL:    ttl,
		Cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Register creates a new user with hashed password
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	if len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username too long (max %d characters)", ErrInvalidInput, maxUsernameLen)
	}
	if len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password too long (max %d characters)", ErrInvalidInput, maxPasswordLen)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hashedPassword),
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Users.GetUserByUsername(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      s.clock().Add(s.TTL).Unix(),
	})
	tokenString, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// GetUserFromToken extracts user ID from JWT
func (s *AuthService) GetUserFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return userID, nil
}

func (s *AuthService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
