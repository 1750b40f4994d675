package workflows

import (
	"backend/internal/common"
	"backend/internal/workflow"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler 审批流程模板管理 Handler
type WorkflowHandler struct {
	service *workflow.Service
}

// NewWorkflowHandler 创建 WorkflowHandler 实例
func NewWorkflowHandler(service *workflow.Service) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// ListWorkflows 查询流程模板列表
// @Summary 查询审批流程列表
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param keyword query string false "关键词"
// @Param status query string false "状态筛选"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/workflows [get]
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	var req common.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	workflows, total, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseList(c, workflows, total, &req.PaginationRequest)
}

// GetWorkflow 查询单个流程模板
// @Summary 查询审批流程详情
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param id path string true "流程 ID"
// @Router /api/workflows/{id} [get]
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	wf, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccess(c, wf)
}

// CreateWorkflow 创建流程模板
// @Summary 创建审批流程
// @Tags Workflows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body workflow.CreateRequest true "流程创建参数"
// @Success 201 {object} workflow.ApprovalWorkflow
// @Router /api/workflows [post]
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var req workflow.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	wf, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseCreated(c, wf)
}

// UpdateWorkflow 更新流程模板
// @Summary 更新审批流程
// @Description 步骤变更不影响已发起的审批实例
// @Tags Workflows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "流程 ID"
// @Param request body workflow.UpdateRequest true "更新参数"
// @Router /api/workflows/{id} [put]
func (h *WorkflowHandler) UpdateWorkflow(c *gin.Context) {
	var req workflow.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	wf, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		common.ResponseFromError(c, err)
		return
	}

	common.ResponseSuccess(c, wf)
}

// DeactivateWorkflow 停用流程模板
// @Summary 停用审批流程
// @Description 停用后不可发起新审批，进行中的实例不受影响
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param id path string true "流程 ID"
// @Router /api/workflows/{id} [delete]
func (h *WorkflowHandler) DeactivateWorkflow(c *gin.Context) {
	if err := h.service.SetActive(c.Request.Context(), c.Param("id"), false); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseNoContent(c)
}

// ActivateWorkflow 启用流程模板
// @Summary 启用审批流程
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param id path string true "流程 ID"
// @Router /api/workflows/{id}/activate [post]
func (h *WorkflowHandler) ActivateWorkflow(c *gin.Context) {
	if err := h.service.SetActive(c.Request.Context(), c.Param("id"), true); err != nil {
		common.ResponseFromError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "流程已启用", nil)
}
