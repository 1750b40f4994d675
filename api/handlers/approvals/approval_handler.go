package approvals

import (
	"backend/internal/approval"
	"backend/internal/auth"
	"backend/internal/common"

	"github.com/gin-gonic/gin"
)

// ApprovalHandler 审批实例 Handler
type ApprovalHandler struct {
	engine *approval.Engine
}

// NewApprovalHandler 创建 ApprovalHandler 实例
func NewApprovalHandler(engine *approval.Engine) *ApprovalHandler {
	return &ApprovalHandler{engine: engine}
}

// ActionRequest 审批动作请求
type ActionRequest struct {
	ActionType string `json:"action_type" binding:"required"`
	Comment    string `json:"comment" binding:"max=2000"`
}

// ProcessAction 处理审批动作
// @Summary 处理审批动作
// @Description 支持 APPROVE、REJECT、REQUEST_CHANGES、COMMENT 四种动作
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审批实例 ID"
// @Param request body ActionRequest true "审批动作参数"
// @Success 200 {object} approval.Approval
// @Router /api/approvals/{id}/action [post]
func (h *ApprovalHandler) ProcessAction(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	appr, err := h.engine.ProcessAction(c.Request.Context(), &approval.ActionRequest{
		ApprovalID: c.Param("id"),
		ActorID:    userCtx.UserID,
		ActionType: req.ActionType,
		Comment:    req.Comment,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccess(c, appr)
}

// CommentRequest 快捷审批请求，仅包含可选意见
type CommentRequest struct {
	Comment string `json:"comment" binding:"max=2000"`
}

// Approve 快捷批准
// @Summary 批准审批
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "表单提交 ID（或审批实例 ID）"
// @Param request body CommentRequest false "审批意见"
// @Success 200 {object} approval.Approval
// @Router /api/approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.shortcutAction(c, approval.ActionApprove, "Approved")
}

// Reject 快捷驳回
// @Summary 驳回审批
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "表单提交 ID（或审批实例 ID）"
// @Param request body CommentRequest false "审批意见"
// @Success 200 {object} approval.Approval
// @Router /api/approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.shortcutAction(c, approval.ActionReject, "Rejected")
}

// shortcutAction 快捷审批端点以文档（表单提交）为中心：
// 路径参数优先按表单提交解析出其审批实例，解析不到时回退为审批实例 ID。
func (h *ApprovalHandler) shortcutAction(c *gin.Context, actionType, defaultComment string) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	// 请求体可省略
	var req CommentRequest
	_ = c.ShouldBindJSON(&req)
	if req.Comment == "" {
		req.Comment = defaultComment
	}

	approvalID := c.Param("id")
	if appr, err := h.engine.GetBySubmission(c.Request.Context(), approvalID); err == nil {
		approvalID = appr.ID
	}

	appr, err := h.engine.ProcessAction(c.Request.Context(), &approval.ActionRequest{
		ApprovalID: approvalID,
		ActorID:    userCtx.UserID,
		ActionType: actionType,
		Comment:    req.Comment,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccess(c, appr)
}

// GetApproval 查询审批实例详情
// @Summary 查询审批详情
// @Description 包含按时间排序的完整动作历史
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param id path string true "审批实例 ID"
// @Success 200 {object} approval.Approval
// @Router /api/approvals/{id} [get]
func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	appr, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, appr)
}

// GetBySubmission 按表单提交查询审批实例
// @Summary 查询表单对应的审批
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param id path string true "表单提交 ID"
// @Success 200 {object} approval.Approval
// @Router /api/submissions/{id}/approval [get]
func (h *ApprovalHandler) GetBySubmission(c *gin.Context) {
	appr, err := h.engine.GetBySubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, appr)
}

// ListPending 查询当前用户的待办审批
// @Summary 查询待办审批列表
// @Description 返回当前步骤轮到该用户（直接指定或经角色）处理的审批
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
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

	approvals, total, err := h.engine.PendingForUser(c.Request.Context(), userCtx.UserID, req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseList(c, approvals, total, &req)
}
