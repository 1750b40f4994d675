package submissions

import (
	"backend/internal/approval"
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/submission"
	"backend/internal/workflow"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// SubmissionHandler 表单提交 Handler
type SubmissionHandler struct {
	submissions *submission.Service
	workflows   *workflow.Service
	engine      *approval.Engine
}

// NewSubmissionHandler 创建 SubmissionHandler 实例
func NewSubmissionHandler(submissions *submission.Service, workflows *workflow.Service, engine *approval.Engine) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		workflows:   workflows,
		engine:      engine,
	}
}

// CreateSubmissionRequest 创建表单提交请求。
// 指定 workflow_code 时直接提交并发起对应流程的审批。
type CreateSubmissionRequest struct {
	FormType     string         `json:"form_type" binding:"required,max=100"`
	Title        string         `json:"title" binding:"required,max=255"`
	Data         datatypes.JSON `json:"data"`
	WorkflowCode string         `json:"workflow_code"`
}

// CreateSubmissionResponse 创建表单提交响应
type CreateSubmissionResponse struct {
	Submission *submission.FormSubmission `json:"submission"`
	Approval   *approval.Approval         `json:"approval,omitempty"`
}

// CreateSubmission 创建表单提交
// @Summary 创建表单提交
// @Description 默认创建草稿；指定 workflow_code 时直接提交并发起审批
// @Tags Submissions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateSubmissionRequest true "表单提交参数"
// @Success 201 {object} CreateSubmissionResponse
// @Router /api/submissions [post]
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	var req CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	sub, err := h.submissions.Create(ctx, userCtx.UserID, &submission.CreateRequest{
		FormType: req.FormType,
		Title:    req.Title,
		Data:     req.Data,
	})
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	resp := CreateSubmissionResponse{Submission: sub}

	if req.WorkflowCode != "" {
		wf, err := h.workflows.GetByCode(ctx, req.WorkflowCode)
		if err != nil {
			common.ResponseFromError(c, err)
			return
		}

		if sub, err = h.submissions.Submit(ctx, sub.ID, userCtx.UserID); err != nil {
			common.ResponseFromError(c, err)
			return
		}
		resp.Submission = sub

		appr, err := h.engine.Initiate(ctx, sub.ID, wf.ID, userCtx.UserID)
		if err != nil {
			common.ResponseFromError(c, err)
			return
		}
		resp.Approval = appr
	}

	common.ResponseCreated(c, resp)
}

// GetSubmission 查询表单提交详情
// @Summary 查询表单提交详情
// @Tags Submissions
// @Security BearerAuth
// @Produce json
// @Param id path string true "表单提交 ID"
// @Router /api/submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, sub)
}

// ListSubmissions 查询当前用户的表单提交
// @Summary 查询我的表单提交列表
// @Tags Submissions
// @Security BearerAuth
// @Produce json
// @Param status query string false "状态筛选"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	var req common.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	subs, total, err := h.submissions.ListForUser(c.Request.Context(), userCtx.UserID, req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseList(c, subs, total, &req.PaginationRequest)
}

// InitiateRequest 发起审批请求
type InitiateRequest struct {
	WorkflowID   string `json:"workflow_id"`
	WorkflowCode string `json:"workflow_code"`
}

// InitiateApproval 为已提交的表单发起审批
// @Summary 发起审批
// @Tags Submissions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "表单提交 ID"
// @Param request body InitiateRequest true "流程指定参数，workflow_id 与 workflow_code 二选一"
// @Success 201 {object} approval.Approval
// @Router /api/submissions/{id}/initiate [post]
func (h *SubmissionHandler) InitiateApproval(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	workflowID := req.WorkflowID
	if workflowID == "" {
		if req.WorkflowCode == "" {
			common.ResponseBadRequest(c, "必须指定 workflow_id 或 workflow_code")
			return
		}
		wf, err := h.workflows.GetByCode(ctx, req.WorkflowCode)
		if err != nil {
			common.ResponseFromError(c, err)
			return
		}
		workflowID = wf.ID
	}

	appr, err := h.engine.Initiate(ctx, c.Param("id"), workflowID, userCtx.UserID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseCreated(c, appr)
}

// SubmitSubmission 提交草稿表单
// @Summary 提交表单
// @Tags Submissions
// @Security BearerAuth
// @Produce json
// @Param id path string true "表单提交 ID"
// @Router /api/submissions/{id}/submit [post]
func (h *SubmissionHandler) SubmitSubmission(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), c.Param("id"), userCtx.UserID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, sub)
}

// WithdrawSubmission 撤回已提交的表单
// @Summary 撤回表单
// @Tags Submissions
// @Security BearerAuth
// @Produce json
// @Param id path string true "表单提交 ID"
// @Router /api/submissions/{id}/withdraw [post]
func (h *SubmissionHandler) WithdrawSubmission(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	sub, err := h.submissions.Withdraw(c.Request.Context(), c.Param("id"), userCtx.UserID)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, sub)
}
