package auth

import (
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/directory"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	jwtService *auth.JWTService
	directory  *directory.Service
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwtService *auth.JWTService, dir *directory.Service) *AuthHandler {
	return &AuthHandler{
		jwtService: jwtService,
		directory:  dir,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	*auth.TokenPair
	User *UserInfo `json:"user"`
}

// UserInfo 用户信息
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Roles    []string `json:"roles"`
}

// Login 用户登录
// @Summary 用户登录
// @Description 使用用户名和密码登录，获取访问令牌和刷新令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录请求参数"
// @Success 200 {object} LoginResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.directory.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	roles, err := h.directory.RoleNamesOf(c.Request.Context(), user.ID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(user.ID, roles)
	if err != nil {
		common.ResponseServerError(c, "生成令牌失败")
		return
	}

	common.ResponseSuccess(c, LoginResponse{
		TokenPair: tokenPair,
		User: &UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			FullName: user.FullName,
			Roles:    roles,
		},
	})
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 刷新访问令牌
// @Summary 刷新访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "刷新令牌请求参数"
// @Success 200 {object} auth.TokenPair
// @Router /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误")
		return
	}

	tokenPair, err := h.jwtService.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.ResponseUnauthorized(c, "刷新令牌失败")
		return
	}

	common.ResponseSuccess(c, tokenPair)
}

// LogoutRequest 登出请求
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout 用户登出，将当前令牌加入黑名单
// @Summary 用户登出
// @Tags Auth
// @Accept json
// @Produce json
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	// 访问令牌从 Header 取，刷新令牌从 Body 取
	if token := auth.ExtractTokenFromBearer(c.GetHeader("Authorization")); token != "" {
		_ = h.jwtService.InvalidateToken(c.Request.Context(), token)
	}

	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		_ = h.jwtService.InvalidateToken(c.Request.Context(), req.RefreshToken)
	}

	common.ResponseSuccessMessage(c, "已登出", nil)
}

// Me 查询当前登录用户信息
// @Summary 查询当前用户
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} UserInfo
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	user, err := h.directory.GetUser(c.Request.Context(), userCtx.UserID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccess(c, UserInfo{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		Roles:    userCtx.Roles,
	})
}
