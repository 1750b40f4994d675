package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cacheKeyPrefix = "workflow:template:"
	cacheTTL       = 10 * time.Minute
)

// Service 审批流程模板服务
type Service struct {
	*common.BaseService
	redisClient redis.UniversalClient // 可为 nil，表示不启用缓存
}

// ServiceOption 服务配置选项
type ServiceOption func(*Service)

// WithRedisCache 启用 Redis 模板缓存
func WithRedisCache(client redis.UniversalClient) ServiceOption {
	return func(s *Service) {
		s.redisClient = client
	}
}

// NewService 创建审批流程模板服务
func NewService(db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{
		BaseService: common.NewBaseService(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StepRequest 审批步骤定义
type StepRequest struct {
	StepOrder            int      `json:"step_order" binding:"required,min=1"`
	StepName             string   `json:"step_name" binding:"required,max=255"`
	ApproverUserIDs      []string `json:"approver_user_ids"`
	ApproverRoleIDs      []string `json:"approver_role_ids"`
	RequiresAllApprovers bool     `json:"requires_all_approvers"`
	RequiresSignature    bool     `json:"requires_signature"`
	AutoApproveHours     *int     `json:"auto_approve_hours"`
}

// CreateRequest 创建审批流程模板请求
type CreateRequest struct {
	WorkflowCode             string        `json:"workflow_code" binding:"required,max=100"`
	WorkflowName             string        `json:"workflow_name" binding:"required,max=255"`
	Description              string        `json:"description"`
	FormType                 string        `json:"form_type" binding:"required,max=100"`
	RequiresDigitalSignature bool          `json:"requires_digital_signature"`
	Steps                    []StepRequest `json:"steps" binding:"required,min=1,dive"`
}

// Create 创建审批流程模板
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*ApprovalWorkflow, error) {
	if err := validateSteps(req.Steps); err != nil {
		return nil, err
	}

	exists, err := s.Exists(ctx, &ApprovalWorkflow{}, "workflow_code = ?", req.WorkflowCode)
	if err != nil {
		return nil, fmt.Errorf("查询流程编码失败: %w", err)
	}
	if exists {
		return nil, common.NewBusinessError(common.CodeConflict,
			fmt.Sprintf("流程编码 %s 已存在", req.WorkflowCode))
	}

	wf := &ApprovalWorkflow{
		WorkflowCode:             req.WorkflowCode,
		WorkflowName:             req.WorkflowName,
		Description:              req.Description,
		FormType:                 req.FormType,
		RequiresDigitalSignature: req.RequiresDigitalSignature,
		IsActive:                 true,
	}

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(wf).Error; err != nil {
			return fmt.Errorf("创建审批流程失败: %w", err)
		}
		return s.createSteps(tx, wf.ID, req.Steps)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("审批流程模板创建成功",
		zap.String("workflow_id", wf.ID),
		zap.String("workflow_code", wf.WorkflowCode),
		zap.Int("steps", len(req.Steps)),
	)
	return s.Get(ctx, wf.ID)
}

// createSteps 在事务内创建步骤及审批人关联
func (s *Service) createSteps(tx *gorm.DB, workflowID string, steps []StepRequest) error {
	maxOrder := 0
	for _, step := range steps {
		if step.StepOrder > maxOrder {
			maxOrder = step.StepOrder
		}
	}

	for _, req := range steps {
		step := &ApprovalStep{
			WorkflowID:           workflowID,
			StepOrder:            req.StepOrder,
			StepName:             req.StepName,
			RequiresAllApprovers: req.RequiresAllApprovers,
			IsFinalStep:          req.StepOrder == maxOrder,
			RequiresSignature:    req.RequiresSignature,
			AutoApproveHours:     req.AutoApproveHours,
		}
		if err := tx.Create(step).Error; err != nil {
			return fmt.Errorf("创建审批步骤失败: %w", err)
		}

		if len(req.ApproverUserIDs) > 0 {
			var users []directory.User
			if err := tx.Where("id IN ?", req.ApproverUserIDs).Find(&users).Error; err != nil {
				return fmt.Errorf("查询审批人失败: %w", err)
			}
			if len(users) != len(req.ApproverUserIDs) {
				return common.NewBusinessError(common.CodeUserNotFound, "存在无效的审批人")
			}
			if err := tx.Model(step).Association("ApproverUsers").Append(users); err != nil {
				return fmt.Errorf("关联审批人失败: %w", err)
			}
		}

		if len(req.ApproverRoleIDs) > 0 {
			var roles []directory.Role
			if err := tx.Where("id IN ?", req.ApproverRoleIDs).Find(&roles).Error; err != nil {
				return fmt.Errorf("查询审批角色失败: %w", err)
			}
			if len(roles) != len(req.ApproverRoleIDs) {
				return common.NewBusinessError(common.CodeRoleNotFound, "存在无效的审批角色")
			}
			if err := tx.Model(step).Association("ApproverRoles").Append(roles); err != nil {
				return fmt.Errorf("关联审批角色失败: %w", err)
			}
		}
	}
	return nil
}

// validateSteps 校验步骤定义：序号从1开始且连续，每个步骤至少一个审批人
func validateSteps(steps []StepRequest) error {
	if len(steps) == 0 {
		return common.NewBusinessError(common.CodeWorkflowInvalid, "审批流程至少需要一个步骤")
	}

	orders := make([]int, 0, len(steps))
	seen := make(map[int]bool)
	for _, step := range steps {
		if seen[step.StepOrder] {
			return common.NewBusinessError(common.CodeWorkflowInvalid,
				fmt.Sprintf("步骤序号 %d 重复", step.StepOrder))
		}
		seen[step.StepOrder] = true
		orders = append(orders, step.StepOrder)

		if len(step.ApproverUserIDs) == 0 && len(step.ApproverRoleIDs) == 0 {
			return common.NewBusinessError(common.CodeWorkflowInvalid,
				fmt.Sprintf("步骤 %d 未配置审批人", step.StepOrder))
		}
	}

	sort.Ints(orders)
	for i, order := range orders {
		if order != i+1 {
			return common.NewBusinessError(common.CodeWorkflowInvalid,
				"步骤序号必须从1开始且连续")
		}
	}
	return nil
}

// Get 根据ID获取审批流程模板（含步骤与审批人），优先读取缓存
func (s *Service) Get(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	if cached := s.fromCache(ctx, id); cached != nil {
		return cached, nil
	}

	var wf ApprovalWorkflow
	err := s.GetDBWithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order")
		}).
		Preload("Steps.ApproverUsers").
		Preload("Steps.ApproverRoles").
		Where("id = ?", id).
		First(&wf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeWorkflowNotFound)
		}
		return nil, fmt.Errorf("查询审批流程失败: %w", err)
	}

	s.toCache(ctx, &wf)
	return &wf, nil
}

// GetByCode 根据流程编码获取启用中的审批流程模板
func (s *Service) GetByCode(ctx context.Context, code string) (*ApprovalWorkflow, error) {
	var wf ApprovalWorkflow
	err := s.GetDBWithContext(ctx).
		Scopes(common.ActiveOnly()).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order")
		}).
		Preload("Steps.ApproverUsers").
		Preload("Steps.ApproverRoles").
		Where("workflow_code = ?", code).
		First(&wf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeWorkflowNotFound)
		}
		return nil, fmt.Errorf("查询审批流程失败: %w", err)
	}
	return &wf, nil
}

// List 分页查询审批流程模板
func (s *Service) List(ctx context.Context, req common.ListRequest) ([]ApprovalWorkflow, int64, error) {
	base := s.GetDBWithContext(ctx).Model(&ApprovalWorkflow{})
	base = s.ApplyKeywordSearch(base, req.Keyword, []string{"workflow_name", "workflow_code"})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计审批流程失败: %w", err)
	}

	var workflows []ApprovalWorkflow
	query := s.GetDBWithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order")
		}).
		Order("created_at DESC")
	query = s.ApplyKeywordSearch(query, req.Keyword, []string{"workflow_name", "workflow_code"})
	if err := s.ApplyPaginationRequest(query, req.PaginationRequest).Find(&workflows).Error; err != nil {
		return nil, 0, fmt.Errorf("查询审批流程列表失败: %w", err)
	}
	return workflows, total, nil
}

// UpdateRequest 更新审批流程模板请求，Steps 非空时整体替换步骤定义
type UpdateRequest struct {
	WorkflowName             *string       `json:"workflow_name"`
	Description              *string       `json:"description"`
	RequiresDigitalSignature *bool         `json:"requires_digital_signature"`
	Steps                    []StepRequest `json:"steps"`
}

// Update 更新审批流程模板。步骤变更不影响已发起的审批实例，
// 实例继续按其发起时解析到的步骤推进。
func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) (*ApprovalWorkflow, error) {
	wf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(req.Steps) > 0 {
		if err := validateSteps(req.Steps); err != nil {
			return nil, err
		}
	}

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{}
		if req.WorkflowName != nil {
			updates["workflow_name"] = *req.WorkflowName
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.RequiresDigitalSignature != nil {
			updates["requires_digital_signature"] = *req.RequiresDigitalSignature
		}
		if len(updates) > 0 {
			if err := tx.Model(&ApprovalWorkflow{}).Where("id = ?", id).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("更新审批流程失败: %w", err)
			}
		}

		if len(req.Steps) > 0 {
			// 整体替换步骤定义
			var oldSteps []ApprovalStep
			if err := tx.Where("workflow_id = ?", id).Find(&oldSteps).Error; err != nil {
				return fmt.Errorf("查询原有步骤失败: %w", err)
			}
			for i := range oldSteps {
				if err := tx.Model(&oldSteps[i]).Association("ApproverUsers").Clear(); err != nil {
					return fmt.Errorf("清理审批人关联失败: %w", err)
				}
				if err := tx.Model(&oldSteps[i]).Association("ApproverRoles").Clear(); err != nil {
					return fmt.Errorf("清理审批角色关联失败: %w", err)
				}
			}
			if err := tx.Where("workflow_id = ?", id).Delete(&ApprovalStep{}).Error; err != nil {
				return fmt.Errorf("删除原有步骤失败: %w", err)
			}
			if err := s.createSteps(tx, id, req.Steps); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, wf.ID)
	return s.Get(ctx, id)
}

// SetActive 启用或停用审批流程模板。停用不影响进行中的审批实例。
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	result := s.GetDBWithContext(ctx).Model(&ApprovalWorkflow{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("更新审批流程状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeWorkflowNotFound)
	}

	s.invalidateCache(ctx, id)
	return nil
}

// fromCache 尝试从缓存读取模板
func (s *Service) fromCache(ctx context.Context, id string) *ApprovalWorkflow {
	if s.redisClient == nil {
		return nil
	}

	data, err := s.redisClient.Get(ctx, cacheKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("读取模板缓存失败", zap.String("workflow_id", id), zap.Error(err))
		}
		metrics.CacheMissesTotal.WithLabelValues("workflow_template").Inc()
		return nil
	}

	var wf ApprovalWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		logger.Warn("解析模板缓存失败", zap.String("workflow_id", id), zap.Error(err))
		metrics.CacheMissesTotal.WithLabelValues("workflow_template").Inc()
		return nil
	}

	metrics.CacheHitsTotal.WithLabelValues("workflow_template").Inc()
	return &wf
}

// toCache 将模板写入缓存，失败仅记录日志
func (s *Service) toCache(ctx context.Context, wf *ApprovalWorkflow) {
	if s.redisClient == nil {
		return
	}

	data, err := json.Marshal(wf)
	if err != nil {
		logger.Warn("序列化模板缓存失败", zap.String("workflow_id", wf.ID), zap.Error(err))
		return
	}
	if err := s.redisClient.Set(ctx, cacheKeyPrefix+wf.ID, data, cacheTTL).Err(); err != nil {
		logger.Warn("写入模板缓存失败", zap.String("workflow_id", wf.ID), zap.Error(err))
	}
}

// invalidateCache 删除模板缓存
func (s *Service) invalidateCache(ctx context.Context, id string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, cacheKeyPrefix+id).Err(); err != nil {
		logger.Warn("删除模板缓存失败", zap.String("workflow_id", id), zap.Error(err))
	}
}
