package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shop-auth/internal/auth"
	"shop-auth/internal/captcha"
	"shop-auth/internal/domain"
	"shop-auth/internal/repository"
	"shop-auth/internal/service"
	"shop-auth/internal/storage"
)

const (
	captchaHeader    = "X-Captcha-Response"
	maxAvatarBytes   = 5 << 20
	avatarURLExpires = 15 * time.Minute
)

// Config carries the collaborators the HTTP layer is wired to. Storage may be
// nil, in which case the avatar routes answer 503.
type Config struct {
	Users         service.UserService
	Tokens        auth.TokenService
	Captcha       captcha.Verifier
	Storage       storage.Service
	AvatarPrefix  string
	AuthRateLimit RateLimit
	Logger        logrus.FieldLogger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users        service.UserService
	tokens       auth.TokenService
	captcha      captcha.Verifier
	storage      storage.Service
	avatarPrefix string
	authLimit    RateLimit
	logger       logrus.FieldLogger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Captcha == nil {
		cfg.Captcha = captcha.NewVerifier(captcha.Config{})
	}
	return &Handler{
		users:        cfg.Users,
		tokens:       cfg.Tokens,
		captcha:      cfg.Captcha,
		storage:      cfg.Storage,
		avatarPrefix: cfg.AvatarPrefix,
		authLimit:    cfg.AuthRateLimit,
		logger:       cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(accessLog(h.logger), corsMiddleware())

	limited := rateLimit(h.authLimit, h.logger)

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/users", limited, h.requireCaptcha(), h.register)
		api.POST("/users/login", limited, h.requireCaptcha(), h.login)
	}

	authed := api.Group("", h.requireAuth())
	{
		authed.GET("/users", h.listUsers)
		authed.GET("/users/whoami", h.whoami)
		authed.GET("/users/me", h.me)
		authed.PATCH("/users/me", h.updateMe)
		authed.DELETE("/users/me", h.deleteMe)
		authed.PUT("/users/me/avatar", h.uploadAvatar)
		authed.GET("/users/me/avatar", h.avatarURL)
		authed.GET("/users/:id", h.getUser)
	}
}

type registerRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Age        string `json:"age"`
	BirthDate  string `json:"birth_date"`
	Profession string `json:"profession"`
	Engaged    bool   `json:"engaged"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Age        *string `json:"age"`
	BirthDate  *string `json:"birth_date"`
	Profession *string `json:"profession"`
	Engaged    *bool   `json:"engaged"`
}

type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Age        string `json:"age"`
	BirthDate  string `json:"birth_date"`
	Profession string `json:"profession"`
	Engaged    bool   `json:"engaged"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type ProfileResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Roles string `json:"roles"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), service.Registration{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Age:        req.Age,
		BirthDate:  req.BirthDate,
		Profession: req.Profession,
		Engaged:    req.Engaged,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userToResponse(*user))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.VerifyCredentials(c.Request.Context(), domain.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	profile := h.users.ConvertToUserProfile(user)
	token, err := h.tokens.Generate(&profile)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) whoami(c *gin.Context) {
	profile := currentProfile(c)
	c.JSON(http.StatusOK, ProfileResponse{
		ID:    profile.ID,
		Name:  profile.Name,
		Roles: profile.Role,
	})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.tokens.VerifyUser(c.Request.Context(), currentToken(c), "api.me")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) getUser(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) updateMe(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), currentProfile(c).ID, service.ProfileUpdate{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Age:        req.Age,
		BirthDate:  req.BirthDate,
		Profession: req.Profession,
		Engaged:    req.Engaged,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) deleteMe(c *gin.Context) {
	id := currentProfile(c).ID
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"deleted": id}
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		if err := h.storage.DeleteObject(ctx, storage.AvatarKey(h.avatarPrefix, id)); err != nil {
			resp["warnings"] = []string{fmt.Sprintf("delete avatar: %v", err)}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) uploadAvatar(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	contentType := c.ContentType()
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "avatar must be an image"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar too large"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar body is empty"})
		return
	}

	key := storage.AvatarKey(h.avatarPrefix, currentProfile(c).ID)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := h.storage.PutObject(ctx, key, bytes.NewReader(body), contentType); err != nil {
		h.logger.WithError(err).WithField("key", key).Error("avatar upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "avatar upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "size": len(body)})
}

func (h *Handler) avatarURL(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	key := storage.AvatarKey(h.avatarPrefix, currentProfile(c).ID)
	url, err := h.storage.GetObjectURL(c.Request.Context(), key, avatarURLExpires)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(avatarURLExpires.Seconds())})
}

// writeError maps service errors onto HTTP statuses. Every auth failure is a 401.
func (h *Handler) writeError(c *gin.Context, err error) {
	var unauthorized *auth.UnauthorizedError
	switch {
	case errors.As(err, &unauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": unauthorized.Message})
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Age:        user.Age,
		BirthDate:  user.BirthDate,
		Profession: user.Profession,
		Engaged:    user.Engaged,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  user.UpdatedAt.Format(time.RFC3339),
	}
}
