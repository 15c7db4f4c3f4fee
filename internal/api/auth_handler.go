package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"texResume/internal/auth"
	"texResume/internal/config"
	"texResume/internal/database"
)

const refreshTokenCookieName = "refresh_token"

// AuthHandler 处理注册、登录、刷新、改密与退出。
type AuthHandler struct {
	db           *gorm.DB
	authService  *auth.AuthService
	redis        redis.UniversalClient
	guard        *loginGuard
	cookieDomain string
	logger       *slog.Logger
}

// NewAuthHandler 构造认证处理器，限流与锁定参数取自 cfg。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, cfg config.AuthConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		db:           db,
		authService:  authService,
		redis:        redisClient,
		guard:        newLoginGuard(redisClient, cfg.LoginRateLimitPerHour, cfg.LoginLockThreshold, cfg.LoginLockTTL),
		cookieDomain: strings.TrimSpace(cfg.CookieDomain),
		logger:       logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Register 创建新账号。用户名冲突由数据库唯一索引判定。
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := h.loggerFromContext(c).With(slog.String("username", req.Username))

	hashed, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{Username: strings.TrimSpace(req.Username), PasswordHash: hashed}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "username already taken")
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username})
}

// Login 校验口令并返回令牌。同一 IP+用户名每小时的尝试次数受限，连续失败会锁定用户名。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("username", req.Username))

	verdict, err := h.guard.check(ctx, c.ClientIP(), req.Username)
	if err != nil {
		logger.Warn("login guard unavailable", slog.Any("error", err))
	}
	switch verdict {
	case loginRateLimited:
		Error(c, http.StatusTooManyRequests, "rate limit exceeded")
		return
	case loginLocked:
		Error(c, http.StatusTooManyRequests, "account temporarily locked")
		return
	}

	var user database.User
	err = h.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		auth.CheckPasswordHash(req.Password, "")
		h.loginFailed(c, logger, req.Username, "user not found")
		return
	case err != nil:
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		h.loginFailed(c, logger.With(slog.Uint64("user_id", uint64(user.ID))), req.Username, "password mismatch")
		return
	}

	if err := h.guard.reset(ctx, req.Username); err != nil {
		logger.Warn("reset login failures failed", slog.Any("error", err))
	}
	h.issueTokens(c, logger, user)
}

func (h *AuthHandler) loginFailed(c *gin.Context, logger *slog.Logger, username, reason string) {
	locked, err := h.guard.recordFailure(c.Request.Context(), username)
	if err != nil {
		logger.Warn("record login failure failed", slog.Any("error", err))
	}
	logger.Info("login failed", slog.String("reason", reason), slog.Bool("locked", locked))
	Unauthorized(c)
}

// Refresh 用刷新令牌换取新的令牌对，旧刷新令牌随即吊销。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	claims, ok := h.activeRefreshClaims(c, logger)
	if !ok {
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Uint64("user_id", uint64(claims.UserID)), slog.Any("error", err))
		Unauthorized(c)
		return
	}

	if err := h.revokeRefresh(ctx, claims); err != nil {
		logger.Error("revoke rotated refresh token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, logger, user)
}

// ChangePassword 校验当前密码后写入新密码并清除强制改密标记。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		BadRequest(c, "new password must be different from current password")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		logger.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		logger.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		logger.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	user.MustChangePassword = false

	if token := h.refreshTokenFromRequest(c); token != "" {
		if claims, err := h.authService.ValidateRefreshToken(token); err == nil {
			if err := h.revokeRefresh(ctx, claims); err != nil {
				logger.Warn("change password: revoke refresh failed", slog.Any("error", err))
			}
		}
	}

	logger.Info("password changed")
	h.issueTokens(c, logger, user)
}

// Logout 吊销刷新令牌并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	logger := h.loggerFromContext(c)

	claims, ok := h.activeRefreshClaims(c, logger)
	if !ok {
		return
	}
	if err := h.revokeRefresh(c.Request.Context(), claims); err != nil {
		logger.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// activeRefreshClaims 取出并校验请求中的刷新令牌，失败时已写入 401。
func (h *AuthHandler) activeRefreshClaims(c *gin.Context, logger *slog.Logger) (*auth.TokenClaims, bool) {
	token := h.refreshTokenFromRequest(c)
	if token == "" {
		Unauthorized(c)
		return nil, false
	}

	claims, err := h.authService.ValidateRefreshToken(token)
	if err != nil {
		logger.Info("refresh token rejected", slog.Any("error", err))
		Unauthorized(c)
		return nil, false
	}

	revoked, err := h.redis.Exists(c.Request.Context(), revokedRefreshKey(claims.ID)).Result()
	if err != nil {
		logger.Error("refresh revocation lookup failed", slog.Any("error", err))
		Unavailable(c, "session store unavailable")
		return nil, false
	}
	if revoked > 0 {
		logger.Info("refresh token already revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return nil, false
	}
	return claims, true
}

func revokedRefreshKey(jti string) string {
	return "texresume:refresh:revoked:" + jti
}

// revokeRefresh 记录 jti，保留到令牌原本的过期时间。
func (h *AuthHandler) revokeRefresh(ctx context.Context, claims *auth.TokenClaims) error {
	ttl := h.authService.RefreshTokenTTL()
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := h.redis.Set(ctx, revokedRefreshKey(claims.ID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke refresh %s: %w", claims.ID, err)
	}
	return nil
}

func (h *AuthHandler) issueTokens(c *gin.Context, logger *slog.Logger, user database.User) {
	pair, err := h.authService.GenerateTokenPair(user.ID, user.MustChangePassword)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, pair.RefreshToken, int(h.authService.RefreshTokenTTL().Seconds()))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: user.MustChangePassword,
	})
}

// refreshTokenFromRequest 优先读取 Cookie，其次读取 JSON 请求体。
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

// writeRefreshCookie maxAge 为负时删除 Cookie。
func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshTokenCookieName, value, maxAge, "/v1/auth", h.cookieDomain, secure, true)
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return requestLogger(c, h.logger)
}
