package handlers

import (
	"errors"
	"net/http"

	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler holds the authentication service.
type AuthHandler struct {
	authService services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(as services.AuthService) *AuthHandler {
	return &AuthHandler{authService: as}
}

// LoginUser handles staff login.
func (h *AuthHandler) LoginUser(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "LoginUser")
		return
	}

	authResp, err := h.authService.LoginUser(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			utils.LogWarn("LoginUser: rejected credentials", map[string]interface{}{"username": req.Username})
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid username or password.", err.Error()))
		} else {
			utils.LogError(err, "LoginUser: Error from authService.LoginUser")
			utils.RespondInternalError(c, "Failed to login.")
		}
		return
	}
	c.JSON(http.StatusOK, authResp)
}

// CreateStaff registers a staff or admin account. Admin only.
func (h *AuthHandler) CreateStaff(c *gin.Context) {
	var req services.CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "CreateStaff")
		return
	}

	user, err := h.authService.CreateStaff(c.Request.Context(), req)
	if err != nil {
		utils.LogError(err, "CreateStaff: Error from authService.CreateStaff")
		if errors.Is(err, services.ErrUsernameExists) {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Username or phone already exists.", err.Error()))
		} else {
			respondServiceError(c, err, "Failed to create staff account.")
		}
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetCurrentUser retrieves the profile of the currently authenticated user.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID := actorID(c)
	if userID == nil {
		utils.LogError(errors.New("userID not found in context"), "GetCurrentUser: userID not in context")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "User not authenticated.", "Missing user ID in context"))
		return
	}

	user, err := h.authService.GetUserProfile(c.Request.Context(), *userID)
	if err != nil {
		utils.LogError(err, "GetCurrentUser: Error from authService.GetUserProfile for userID "+utils.Int64ToStr(*userID))
		respondServiceError(c, err, "Failed to retrieve user profile.")
		return
	}
	c.JSON(http.StatusOK, user)
}

// LogoutUser acknowledges a logout. Tokens are stateless; the client discards its copy.
func (h *AuthHandler) LogoutUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully. Please discard your token."})
}

// RegisterPushToken stores a customer's FCM token.
func (h *AuthHandler) RegisterPushToken(c *gin.Context) {
	var req services.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "RegisterPushToken")
		return
	}

	if err := h.authService.RegisterPushToken(c.Request.Context(), req); err != nil {
		utils.LogError(err, "RegisterPushToken: Error from authService.RegisterPushToken")
		respondServiceError(c, err, "Failed to register push token.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push token registered."})
}
