package users

import (
	"backend/internal/common"
	"backend/internal/directory"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户与角色管理 Handler（管理员专用）
type UserHandler struct {
	service *directory.Service
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(service *directory.Service) *UserHandler {
	return &UserHandler{service: service}
}

// CreateUser 创建用户
// @Summary 创建用户
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body directory.CreateUserRequest true "用户创建参数"
// @Success 201 {object} directory.User
// @Router /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req directory.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), &req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseCreated(c, user)
}

// ListUsers 分页查询用户
// @Summary 查询用户列表
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	var req common.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	users, total, err := h.service.ListUsers(c.Request.Context(), req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseList(c, users, total, &req)
}

// GetUser 查询单个用户
// @Summary 查询用户详情
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path string true "用户 ID"
// @Router /api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, user)
}

// AssignRoleRequest 分配角色请求
type AssignRoleRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// AssignRole 为用户分配角色
// @Summary 为用户分配角色
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "用户 ID"
// @Param request body AssignRoleRequest true "角色分配参数"
// @Router /api/users/{id}/roles [post]
func (h *UserHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	if err := h.service.AssignRole(c.Request.Context(), c.Param("id"), req.RoleID); err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "角色已分配", nil)
}

// CreateRoleRequest 创建角色请求
type CreateRoleRequest struct {
	RoleName    string `json:"role_name" binding:"required,max=100"`
	Description string `json:"description"`
}

// CreateRole 创建角色
// @Summary 创建角色
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateRoleRequest true "角色创建参数"
// @Router /api/roles [post]
func (h *UserHandler) CreateRole(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	role, err := h.service.CreateRole(c.Request.Context(), req.RoleName, req.Description)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseCreated(c, role)
}

// ListRoles 查询全部角色
// @Summary 查询角色列表
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Router /api/roles [get]
func (h *UserHandler) ListRoles(c *gin.Context) {
	roles, err := h.service.ListRoles(c.Request.Context())
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, roles)
}
