package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/notification"
	"backend/internal/signature"
	"backend/internal/submission"
	"backend/internal/workflow"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine 审批引擎：负责审批实例的发起、动作处理与查询。
// 状态变更在单个事务内完成并通过乐观锁串行化，通知在事务提交后异步投递。
type Engine struct {
	db          *gorm.DB
	workflows   *workflow.Service
	submissions *submission.Service
	authorizer  *Authorizer
	dispatcher  *notification.Dispatcher
	signer      signature.Signer
}

// EngineOption 引擎配置选项
type EngineOption func(*Engine)

// WithDispatcher 配置通知分发器
func WithDispatcher(d *notification.Dispatcher) EngineOption {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithSigner 配置签章协作方
func WithSigner(s signature.Signer) EngineOption {
	return func(e *Engine) {
		e.signer = s
	}
}

// NewEngine 创建审批引擎
func NewEngine(db *gorm.DB, workflows *workflow.Service, submissions *submission.Service, authorizer *Authorizer, opts ...EngineOption) *Engine {
	e := &Engine{
		db:          db,
		workflows:   workflows,
		submissions: submissions,
		authorizer:  authorizer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initiate 为表单提交发起审批。
// 同一表单提交至多存在一个审批实例，重复发起返回冲突。
func (e *Engine) Initiate(ctx context.Context, submissionID, workflowID, initiatedBy string) (*Approval, error) {
	wf, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if len(wf.Steps) == 0 {
		return nil, common.NewBusinessError(common.CodeWorkflowInvalid, "审批流程没有配置任何步骤")
	}
	if !wf.IsActive {
		return nil, common.NewBusinessError(common.CodeWorkflowInvalid, "审批流程已停用")
	}

	sub, err := e.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := e.db.WithContext(ctx).Model(&Approval{}).
		Where("form_submission_id = ?", submissionID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("查询已有审批失败: %w", err)
	}
	if count > 0 {
		return nil, common.NewBusinessError(common.CodeConflict, "该表单提交已存在审批实例")
	}

	approval := &Approval{
		FormSubmissionID: sub.ID,
		WorkflowID:       wf.ID,
		WorkflowCode:     wf.WorkflowCode,
		Status:           StatusInProgress,
		CurrentStepOrder: 1,
		InitiatedBy:      initiatedBy,
		StartedAt:        time.Now(),
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(approval).Error; err != nil {
			return approvalCreateError(err)
		}
		return e.submissions.SetStatusTx(tx, sub.ID, submission.StatusUnderReview, false)
	})
	if err != nil {
		metrics.ApprovalsInitiatedTotal.WithLabelValues(wf.WorkflowCode, "error").Inc()
		return nil, err
	}

	metrics.ApprovalsInitiatedTotal.WithLabelValues(wf.WorkflowCode, "ok").Inc()
	logger.Info("审批发起成功",
		zap.String("approval_id", approval.ID),
		zap.String("submission_id", sub.ID),
		zap.String("workflow_code", wf.WorkflowCode),
	)

	// 提交后投递通知：提交人回执 + 第一步审批人
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(notification.Event{
			UserIDs:       []string{sub.SubmittedBy},
			Type:          notification.TypeSubmissionReceived,
			Subject:       "表单已受理",
			Message:       fmt.Sprintf("您的表单 %s 已进入审批流程「%s」", sub.SubmissionNumber, wf.WorkflowName),
			ReferenceType: "APPROVAL",
			ReferenceID:   approval.ID,
		})
		if step := wf.StepAt(1); step != nil {
			e.dispatcher.Dispatch(e.stepEvent(wf, step, approval, sub))
		}
	}
	e.refreshPendingGauge(ctx)

	return approval, nil
}

// approvalCreateError 翻译审批实例创建错误。
// 两个并发 Initiate 都通过了存在性检查时，后写者撞上
// form_submission_id 唯一索引，应当返回冲突而不是底层数据库错误。
func approvalCreateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "SQLSTATE 23505") ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return common.NewBusinessError(common.CodeConflict, "该表单提交已存在审批实例")
	}
	return fmt.Errorf("创建审批实例失败: %w", err)
}

// ActionRequest 审批动作请求
type ActionRequest struct {
	ApprovalID string
	ActorID    string
	ActionType string
	Comment    string
	IPAddress  string
}

// ProcessAction 处理一次审批动作。
// 校验顺序：动作类型 -> 实例存在 -> 实例状态 -> 步骤解析 -> 审批权限。
// 动作记录与状态迁移在同一事务内提交，乐观锁冲突时整体回滚。
func (e *Engine) ProcessAction(ctx context.Context, req *ActionRequest) (*Approval, error) {
	if !IsValidActionType(req.ActionType) {
		return nil, common.NewBusinessError(common.CodeInvalidRequest,
			fmt.Sprintf("未知的审批动作: %s", req.ActionType))
	}

	approval, err := e.load(ctx, req.ApprovalID)
	if err != nil {
		return nil, err
	}
	if approval.Status != StatusInProgress {
		return nil, common.NewBusinessError(common.CodeApprovalInvalidState,
			fmt.Sprintf("审批已处于终态 %s", approval.Status))
	}

	wf, err := e.workflows.Get(ctx, approval.WorkflowID)
	if err != nil {
		return nil, err
	}
	step := wf.StepAt(approval.CurrentStepOrder)
	if step == nil {
		return nil, common.NewBusinessError(common.CodeWorkflowInvalid,
			fmt.Sprintf("流程配置无效：找不到步骤 %d", approval.CurrentStepOrder))
	}

	can, err := e.authorizer.CanAct(ctx, step, req.ActorID)
	if err != nil {
		return nil, err
	}
	if !can {
		return nil, common.NewBusinessError(common.CodeForbidden, "您不是当前步骤的审批人")
	}

	sub, err := e.submissions.Get(ctx, approval.FormSubmissionID)
	if err != nil {
		return nil, err
	}

	var events []notification.Event
	var needSignature bool

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		action := &ApprovalAction{
			ApprovalID: approval.ID,
			StepID:     step.ID,
			StepOrder:  approval.CurrentStepOrder,
			ActionType: req.ActionType,
			ActorID:    req.ActorID,
			Comment:    req.Comment,
			IPAddress:  req.IPAddress,
			ActionedAt: time.Now(),
		}
		if err := tx.Create(action).Error; err != nil {
			return fmt.Errorf("记录审批动作失败: %w", err)
		}

		switch req.ActionType {
		case ActionComment:
			// 批注不改变审批状态，仅推进版本号以串行化审计记录
			return e.lockedUpdate(tx, approval, map[string]any{})

		case ActionApprove:
			return e.handleApprove(ctx, tx, approval, wf, step, sub, &events, &needSignature)

		case ActionReject:
			if err := e.lockedUpdate(tx, approval, map[string]any{
				"status":       StatusRejected,
				"completed_at": time.Now(),
			}); err != nil {
				return err
			}
			if err := e.submissions.SetStatusTx(tx, sub.ID, submission.StatusRejected, true); err != nil {
				return err
			}
			events = append(events, notification.Event{
				UserIDs:       []string{sub.SubmittedBy},
				Type:          notification.TypeRejected,
				Subject:       "审批未通过",
				Message:       fmt.Sprintf("您的表单 %s 已被驳回", sub.SubmissionNumber),
				ReferenceType: "APPROVAL",
				ReferenceID:   approval.ID,
			})
			return nil

		case ActionRequestChanges:
			if err := e.lockedUpdate(tx, approval, map[string]any{}); err != nil {
				return err
			}
			// 审批停留在当前步骤，表单保持审核中，提交人收到补正通知
			if err := e.submissions.SetStatusTx(tx, sub.ID, submission.StatusUnderReview, false); err != nil {
				return err
			}
			events = append(events, notification.Event{
				UserIDs:       []string{sub.SubmittedBy},
				Type:          notification.TypeChangesRequested,
				Subject:       "审批退回补正",
				Message:       fmt.Sprintf("您的表单 %s 需要补正后重新提交", sub.SubmissionNumber),
				ReferenceType: "APPROVAL",
				ReferenceID:   approval.ID,
			})
			return nil
		}
		return nil
	})
	if err != nil {
		metrics.ApprovalActionsTotal.WithLabelValues(req.ActionType, actionOutcome(err)).Inc()
		return nil, err
	}

	metrics.ApprovalActionsTotal.WithLabelValues(req.ActionType, "success").Inc()
	logger.Info("审批动作处理成功",
		zap.String("approval_id", approval.ID),
		zap.String("actor_id", req.ActorID),
		zap.String("action", req.ActionType),
		zap.Int("step_order", approval.CurrentStepOrder),
	)

	// 终审通过且流程要求签章时，通过签章协作方补记签章。
	// 签章失败只记录日志，不影响已提交的审批结果。
	if needSignature {
		e.recordSignature(ctx, approval, sub, req.ActorID, &events)
	}

	for _, event := range events {
		if e.dispatcher != nil {
			e.dispatcher.Dispatch(event)
		}
	}
	e.refreshPendingGauge(ctx)

	return e.load(ctx, approval.ID)
}

// handleApprove 处理同意动作：满足会签要求后推进或完结流程
func (e *Engine) handleApprove(ctx context.Context, tx *gorm.DB, approval *Approval, wf *workflow.ApprovalWorkflow, step *workflow.ApprovalStep, sub *submission.FormSubmission, events *[]notification.Event, needSignature *bool) error {
	if step.RequiresAllApprovers {
		met, err := e.quorumMet(ctx, tx, approval, step)
		if err != nil {
			return err
		}
		if !met {
			// 会签未齐：仅记录动作，流程停留在当前步骤
			return e.lockedUpdate(tx, approval, map[string]any{})
		}
	}

	if step.IsFinalStep {
		now := time.Now()
		if err := e.lockedUpdate(tx, approval, map[string]any{
			"status":       StatusApproved,
			"completed_at": now,
		}); err != nil {
			return err
		}
		if err := e.submissions.SetStatusTx(tx, sub.ID, submission.StatusApproved, true); err != nil {
			return err
		}

		*needSignature = wf.RequiresDigitalSignature || step.RequiresSignature
		*events = append(*events, notification.Event{
			UserIDs:       []string{sub.SubmittedBy},
			Type:          notification.TypeApproved,
			Subject:       "审批已通过",
			Message:       fmt.Sprintf("您的表单 %s 已审批通过", sub.SubmissionNumber),
			ReferenceType: "APPROVAL",
			ReferenceID:   approval.ID,
		})

		metrics.ApprovalCompletionDuration.
			WithLabelValues(approval.WorkflowCode, StatusApproved).
			Observe(now.Sub(approval.StartedAt).Seconds())
		return nil
	}

	next := wf.StepAt(approval.CurrentStepOrder + 1)
	if next == nil {
		return common.NewBusinessError(common.CodeWorkflowInvalid,
			fmt.Sprintf("流程配置无效：步骤 %d 不是最终步骤但没有后继步骤", approval.CurrentStepOrder))
	}

	if err := e.lockedUpdate(tx, approval, map[string]any{
		"current_step_order": next.StepOrder,
	}); err != nil {
		return err
	}
	*events = append(*events, e.stepEvent(wf, next, approval, sub))
	return nil
}

// quorumMet 判断会签步骤是否已集齐全部审批人的同意。
// 以动作历史中的去重同意人（含本次）对照步骤解析出的审批人全集。
func (e *Engine) quorumMet(ctx context.Context, tx *gorm.DB, approval *Approval, step *workflow.ApprovalStep) (bool, error) {
	var approvedBy []string
	err := tx.Model(&ApprovalAction{}).
		Where("approval_id = ? AND step_order = ? AND action_type = ?",
			approval.ID, approval.CurrentStepOrder, ActionApprove).
		Distinct("actor_id").
		Pluck("actor_id", &approvedBy).Error
	if err != nil {
		return false, fmt.Errorf("查询会签进度失败: %w", err)
	}

	actors, err := e.authorizer.ResolveActors(ctx, step)
	if err != nil {
		return false, err
	}

	approvedSet := make(map[string]bool, len(approvedBy))
	for _, id := range approvedBy {
		approvedSet[id] = true
	}
	for _, actor := range actors {
		if !approvedSet[actor] {
			return false, nil
		}
	}
	return true, nil
}

// lockedUpdate 以乐观锁更新审批实例。
// 版本号不匹配说明存在并发写入，返回冲突错误使事务整体回滚。
func (e *Engine) lockedUpdate(tx *gorm.DB, approval *Approval, updates map[string]any) error {
	updates["lock_version"] = approval.LockVersion + 1

	result := tx.Model(&Approval{}).
		Where("id = ? AND lock_version = ?", approval.ID, approval.LockVersion).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新审批实例失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeApprovalConflict)
	}
	return nil
}

// recordSignature 终审通过后补记数字签章，失败仅记录日志
func (e *Engine) recordSignature(ctx context.Context, approval *Approval, sub *submission.FormSubmission, actorID string, events *[]notification.Event) {
	if e.signer == nil {
		logger.Warn("流程要求签章但未配置签章服务",
			zap.String("approval_id", approval.ID),
		)
		return
	}

	payload := []byte(fmt.Sprintf("%s|%s|%s", approval.ID, approval.FormSubmissionID, StatusApproved))
	record, err := e.signer.Sign(ctx, approval.ID, actorID, payload)
	if err != nil {
		logger.Error("记录数字签章失败",
			zap.String("approval_id", approval.ID),
			zap.Error(err),
		)
		return
	}

	logger.Info("数字签章已记录",
		zap.String("approval_id", approval.ID),
		zap.String("signature_id", record.ID),
	)
	*events = append(*events, notification.Event{
		UserIDs:       []string{sub.SubmittedBy},
		Type:          notification.TypeDocumentSigned,
		Subject:       "文件已签章",
		Message:       fmt.Sprintf("您的表单 %s 的审批结果已完成数字签章", sub.SubmissionNumber),
		ReferenceType: "APPROVAL",
		ReferenceID:   approval.ID,
	})
}

// stepEvent 构造步骤审批人的待办通知事件
func (e *Engine) stepEvent(wf *workflow.ApprovalWorkflow, step *workflow.ApprovalStep, approval *Approval, sub *submission.FormSubmission) notification.Event {
	userIDs := make([]string, 0, len(step.ApproverUsers))
	for _, user := range step.ApproverUsers {
		userIDs = append(userIDs, user.ID)
	}
	roleIDs := make([]string, 0, len(step.ApproverRoles))
	for _, role := range step.ApproverRoles {
		roleIDs = append(roleIDs, role.ID)
	}

	return notification.Event{
		UserIDs:       userIDs,
		RoleIDs:       roleIDs,
		Type:          notification.TypeApprovalRequired,
		Subject:       "您有新的审批任务",
		Message:       fmt.Sprintf("表单 %s 正在等待「%s」审批", sub.SubmissionNumber, step.StepName),
		ReferenceType: "APPROVAL",
		ReferenceID:   approval.ID,
	}
}

// Get 根据ID获取审批实例（含动作历史）
func (e *Engine) Get(ctx context.Context, id string) (*Approval, error) {
	var approval Approval
	err := e.db.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at")
		}).
		Where("id = ?", id).
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeApprovalNotFound)
		}
		return nil, fmt.Errorf("查询审批实例失败: %w", err)
	}
	return &approval, nil
}

// GetBySubmission 根据表单提交ID获取审批实例
func (e *Engine) GetBySubmission(ctx context.Context, submissionID string) (*Approval, error) {
	var approval Approval
	err := e.db.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at")
		}).
		Where("form_submission_id = ?", submissionID).
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeApprovalNotFound)
		}
		return nil, fmt.Errorf("查询审批实例失败: %w", err)
	}
	return &approval, nil
}

// PendingForUser 查询当前用户可以审批的进行中审批实例：
// 当前步骤直接指定该用户，或该用户的角色出现在当前步骤的审批角色中
func (e *Engine) PendingForUser(ctx context.Context, userID string, req common.PaginationRequest) ([]Approval, int64, error) {
	base := e.pendingQuery(ctx, userID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计待办审批失败: %w", err)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.GetPageSize()

	var approvals []Approval
	err := e.pendingQuery(ctx, userID).
		Order("approvals.created_at").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&approvals).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询待办审批失败: %w", err)
	}
	return approvals, total, nil
}

// pendingQuery 构建待办审批查询
func (e *Engine) pendingQuery(ctx context.Context, userID string) *gorm.DB {
	return e.db.WithContext(ctx).Model(&Approval{}).
		Joins("JOIN approval_steps ON approval_steps.workflow_id = approvals.workflow_id AND approval_steps.step_order = approvals.current_step_order").
		Where("approvals.status = ?", StatusInProgress).
		Where(`EXISTS (
			SELECT 1 FROM approval_step_approver_users asu
			WHERE asu.approval_step_id = approval_steps.id AND asu.user_id = ?
		) OR EXISTS (
			SELECT 1 FROM approval_step_approver_roles asr
			JOIN user_roles ur ON ur.role_id = asr.role_id
			WHERE asr.approval_step_id = approval_steps.id AND ur.user_id = ?
		)`, userID, userID)
}

// load 加载审批实例（不含关联）
func (e *Engine) load(ctx context.Context, id string) (*Approval, error) {
	var approval Approval
	err := e.db.WithContext(ctx).Where("id = ?", id).First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeApprovalNotFound)
		}
		return nil, fmt.Errorf("查询审批实例失败: %w", err)
	}
	return &approval, nil
}

// refreshPendingGauge 刷新进行中审批数量指标
func (e *Engine) refreshPendingGauge(ctx context.Context) {
	var count int64
	if err := e.db.WithContext(ctx).Model(&Approval{}).
		Where("status = ?", StatusInProgress).
		Count(&count).Error; err != nil {
		logger.Warn("统计进行中审批失败", zap.Error(err))
		return
	}
	metrics.ApprovalsPendingGauge.Set(float64(count))
}

// actionOutcome 将错误映射为指标标签
func actionOutcome(err error) string {
	var bizErr *common.BusinessError
	if errors.As(err, &bizErr) {
		switch bizErr.Code {
		case common.CodeApprovalConflict:
			return "conflict"
		case common.CodeForbidden:
			return "forbidden"
		case common.CodeApprovalInvalidState:
			return "invalid_state"
		}
	}
	return "error"
}
