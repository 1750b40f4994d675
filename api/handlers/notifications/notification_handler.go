package notifications

import (
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/notification"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知查询 Handler
type NotificationHandler struct {
	service *notification.Service
}

// NewNotificationHandler 创建 NotificationHandler 实例
func NewNotificationHandler(service *notification.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// ListNotifications 查询当前用户的通知
// @Summary 查询通知列表
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param unread_only query bool false "仅未读"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	var req common.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}
	unreadOnly := c.Query("unread_only") == "true"

	notifications, total, err := h.service.ListForUser(c.Request.Context(), userCtx.UserID, unreadOnly, req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseList(c, notifications, total, &req)
}

// UnreadCount 查询未读通知数量
// @Summary 查询未读通知数
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Router /api/notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userCtx.UserID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccess(c, gin.H{"unread_count": count})
}

// MarkAsRead 将通知标记为已读
// @Summary 标记通知已读
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param id path string true "通知 ID"
// @Router /api/notifications/{id}/read [put]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), c.Param("id"), userCtx.UserID); err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "已标记为已读", nil)
}
