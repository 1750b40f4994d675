package api

import (
	"backend/internal/auth"
	"backend/internal/bootstrap"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	// 认证 API（公开，不需要 JWT）
	registerAuthRoutes(router, handlers)

	// 主 API 组
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService))
	registerAPIRoutes(api, container, handlers)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(container.JWTService))
	registerAPIRoutes(apiV1, container, handlers)
}

// registerAuthRoutes 注册认证相关路由（公开）
func registerAuthRoutes(router *gin.Engine, h *Handlers) {
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
	}
}

// registerAPIRoutes 注册需要认证的 API 路由
func registerAPIRoutes(apiGroup *gin.RouterGroup, c *AppContainer, h *Handlers) {
	adminGuard := auth.RequireRole(bootstrap.RoleAdministrator)

	apiGroup.GET("/auth/me", h.Auth.Me)

	// 用户与角色管理（管理员）
	users := apiGroup.Group("/users")
	{
		users.POST("", adminGuard, h.User.CreateUser)
		users.GET("", adminGuard, h.User.ListUsers)
		users.GET("/:id", adminGuard, h.User.GetUser)
		users.POST("/:id/roles", adminGuard, h.User.AssignRole)
	}
	roles := apiGroup.Group("/roles")
	{
		roles.POST("", adminGuard, h.User.CreateRole)
		roles.GET("", h.User.ListRoles)
	}

	// 审批流程模板管理
	workflows := apiGroup.Group("/workflows")
	{
		workflows.GET("", h.Workflow.ListWorkflows)
		workflows.GET("/:id", h.Workflow.GetWorkflow)
		workflows.POST("", adminGuard, h.Workflow.CreateWorkflow)
		workflows.PUT("/:id", adminGuard, h.Workflow.UpdateWorkflow)
		workflows.DELETE("/:id", adminGuard, h.Workflow.DeactivateWorkflow)
		workflows.POST("/:id/activate", adminGuard, h.Workflow.ActivateWorkflow)
	}

	// 表单提交
	submissions := apiGroup.Group("/submissions")
	{
		submissions.POST("", h.Submission.CreateSubmission)
		submissions.GET("", h.Submission.ListSubmissions)
		submissions.GET("/:id", h.Submission.GetSubmission)
		submissions.POST("/:id/submit", h.Submission.SubmitSubmission)
		submissions.POST("/:id/withdraw", h.Submission.WithdrawSubmission)
		submissions.POST("/:id/initiate", h.Submission.InitiateApproval)
		submissions.GET("/:id/approval", h.Approval.GetBySubmission)
	}

	// 审批实例
	approvals := apiGroup.Group("/approvals")
	{
		approvals.GET("/pending", h.Approval.ListPending)
		approvals.GET("/:id", h.Approval.GetApproval)
		approvals.POST("/:id/action", h.Approval.ProcessAction)
		approvals.POST("/:id/approve", h.Approval.Approve)
		approvals.POST("/:id/reject", h.Approval.Reject)
	}

	// 通知
	notifications := apiGroup.Group("/notifications")
	{
		notifications.GET("", h.Notification.ListNotifications)
		notifications.GET("/unread-count", h.Notification.UnreadCount)
		notifications.PUT("/:id/read", h.Notification.MarkAsRead)
	}

	// 运维（管理员）
	admin := apiGroup.Group("/admin", adminGuard)
	{
		admin.GET("/queue/stats", c.QueueStatsHandler())
	}
}
