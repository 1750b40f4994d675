package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/common"
	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service 表单提交服务
type Service struct {
	*common.BaseService
}

// NewService 创建表单提交服务
func NewService(db *gorm.DB) *Service {
	return &Service{
		BaseService: common.NewBaseService(db),
	}
}

// CreateRequest 创建表单提交请求
type CreateRequest struct {
	FormType string         `json:"form_type" binding:"required,max=100"`
	Title    string         `json:"title" binding:"required,max=255"`
	Data     datatypes.JSON `json:"data"`
}

// Create 创建表单提交（草稿状态）
func (s *Service) Create(ctx context.Context, userID string, req *CreateRequest) (*FormSubmission, error) {
	sub := &FormSubmission{
		SubmissionNumber: generateSubmissionNumber(),
		FormType:         req.FormType,
		Title:            req.Title,
		Data:             req.Data,
		Status:           StatusDraft,
		SubmittedBy:      userID,
	}

	if err := s.BaseService.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("创建表单提交失败: %w", err)
	}

	logger.Info("表单提交创建成功",
		zap.String("submission_id", sub.ID),
		zap.String("submission_number", sub.SubmissionNumber),
		zap.String("form_type", sub.FormType),
	)
	return sub, nil
}

// Submit 提交表单（草稿 -> 已提交）
func (s *Service) Submit(ctx context.Context, id, userID string) (*FormSubmission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.SubmittedBy != userID {
		return nil, common.NewBusinessError(common.CodeForbidden, "只有提交人可以提交该表单")
	}
	if sub.Status != StatusDraft {
		return nil, common.NewBusinessError(common.CodeInvalidRequest,
			fmt.Sprintf("当前状态 %s 不允许提交", sub.Status))
	}

	now := time.Now()
	updates := map[string]any{
		"status":       StatusSubmitted,
		"submitted_at": now,
	}
	if err := s.GetDBWithContext(ctx).Model(sub).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("提交表单失败: %w", err)
	}

	sub.Status = StatusSubmitted
	sub.SubmittedAt = &now
	return sub, nil
}

// Get 根据ID获取表单提交
func (s *Service) Get(ctx context.Context, id string) (*FormSubmission, error) {
	var sub FormSubmission
	err := s.GetDBWithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeSubmissionNotFound)
		}
		return nil, fmt.Errorf("查询表单提交失败: %w", err)
	}
	return &sub, nil
}

// ListForUser 分页查询指定用户的表单提交
func (s *Service) ListForUser(ctx context.Context, userID string, req common.ListRequest) ([]FormSubmission, int64, error) {
	base := s.GetDBWithContext(ctx).Model(&FormSubmission{}).
		Scopes(common.BySubmitter(userID))
	base = s.ApplyStatusFilter(base, req.Status)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计表单提交失败: %w", err)
	}

	var subs []FormSubmission
	query := s.GetDBWithContext(ctx).
		Scopes(common.BySubmitter(userID)).
		Order("created_at DESC")
	query = s.ApplyStatusFilter(query, req.Status)
	if err := s.ApplyPaginationRequest(query, req.PaginationRequest).Find(&subs).Error; err != nil {
		return nil, 0, fmt.Errorf("查询表单提交列表失败: %w", err)
	}
	return subs, total, nil
}

// Withdraw 撤回表单提交（仅提交人，且尚未进入审核）
func (s *Service) Withdraw(ctx context.Context, id, userID string) (*FormSubmission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.SubmittedBy != userID {
		return nil, common.NewBusinessError(common.CodeForbidden, "只有提交人可以撤回该表单")
	}
	if sub.Status != StatusSubmitted {
		return nil, common.NewBusinessError(common.CodeInvalidRequest,
			fmt.Sprintf("当前状态 %s 不允许撤回", sub.Status))
	}

	if err := s.GetDBWithContext(ctx).Model(sub).
		Update("status", StatusWithdrawn).Error; err != nil {
		return nil, fmt.Errorf("撤回表单失败: %w", err)
	}
	sub.Status = StatusWithdrawn
	return sub, nil
}

// SetStatusTx 在事务内更新表单提交状态，completed 为 true 时同时写入完结时间
func (s *Service) SetStatusTx(tx *gorm.DB, id, status string, completed bool) error {
	updates := map[string]any{"status": status}
	if completed {
		updates["completed_at"] = time.Now()
	}

	result := tx.Model(&FormSubmission{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("更新表单提交状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeSubmissionNotFound)
	}
	return nil
}

// generateSubmissionNumber 生成提交编号，形如 FS-20250102-1A2B3C4D
func generateSubmissionNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("FS-%s-%s", time.Now().Format("20060102"), suffix)
}
