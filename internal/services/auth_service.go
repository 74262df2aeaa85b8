package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
	"cafe_backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

var ErrUsernameExists = errors.New("username or phone already exists")

// --- Data Transfer Objects (DTOs) ---

// LoginRequest DTO
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateStaffRequest DTO. Only admins create staff accounts.
type CreateStaffRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=STAFF ADMIN"`
}

// RegisterPushTokenRequest DTO
type RegisterPushTokenRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Token  string `json:"token" binding:"required"`
}

// AuthResponse DTO
type AuthResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

// --- AuthService Interface ---
type AuthService interface {
	LoginUser(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	CreateStaff(ctx context.Context, req CreateStaffRequest) (*models.User, error)
	GetUserProfile(ctx context.Context, userID int64) (*models.User, error)
	RegisterPushToken(ctx context.Context, req RegisterPushTokenRequest) error
}

// --- authService Implementation ---
type authService struct {
	authRepo repositories.AuthRepository
	jwt      *utils.JWTManager
}

// NewAuthService creates a new instance of AuthService.
func NewAuthService(authRepo repositories.AuthRepository, jwt *utils.JWTManager) AuthService {
	return &authService{authRepo: authRepo, jwt: jwt}
}

// LoginUser handles staff login and token generation.
func (s *authService) LoginUser(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, storedHashedPassword, err := s.authRepo.FindUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login attempt failed: %w", err)
	}

	if !user.IsActive || !user.IsStaff() || storedHashedPassword == "" {
		return nil, ErrInvalidCredentials
	}

	// err is bcrypt.ErrMismatchedHashAndPassword for wrong password
	if err := bcrypt.CompareHashAndPassword([]byte(storedHashedPassword), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	username := ""
	if user.Username != nil {
		username = *user.Username
	}
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	user.PasswordHash = ""
	return &AuthResponse{
		User:        user,
		AccessToken: accessToken,
		ExpiresIn:   int64(s.jwt.TTL().Seconds()),
	}, nil
}

func (s *authService) CreateStaff(ctx context.Context, req CreateStaffRequest) (*models.User, error) {
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != models.RoleStaff && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: role must be STAFF or ADMIN", ErrValidation)
	}
	phone := utils.NormalizePhone(req.Phone)
	if !utils.IsValidPhone(phone) {
		return nil, fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashedPassword := string(hashedPasswordBytes)

	username := strings.TrimSpace(req.Username)
	user := &models.User{
		Name:     strings.TrimSpace(req.Name),
		Phone:    phone,
		Username: &username,
		Role:     role,
		IsActive: true,
	}
	if _, err := s.authRepo.CreateUser(ctx, nil, user, &hashedPassword); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("failed to create staff user: %w", err)
	}
	return user, nil
}

// GetUserProfile retrieves a user's profile by their ID.
func (s *authService) GetUserProfile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.authRepo.FindUserByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to retrieve user profile: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// RegisterPushToken stores the device token FCM delivers to.
func (s *authService) RegisterPushToken(ctx context.Context, req RegisterPushTokenRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	if err := s.authRepo.UpdateFCMToken(ctx, req.UserID, token); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}
