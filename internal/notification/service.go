package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/worker/tasks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 通知服务：负责投递落库、渠道发送与已读管理
type Service struct {
	*common.BaseService
	directory *directory.Service
	email     *EmailSender // 可为 nil，表示邮件渠道未配置
}

// ServiceOption 服务配置选项
type ServiceOption func(*Service)

// WithEmailSender 配置邮件发送器
func WithEmailSender(sender *EmailSender) ServiceOption {
	return func(s *Service) {
		s.email = sender
	}
}

// NewService 创建通知服务
func NewService(db *gorm.DB, dir *directory.Service, opts ...ServiceOption) *Service {
	s := &Service{
		BaseService: common.NewBaseService(db),
		directory:   dir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver 投递一条通知任务：解析接收人、落库、按渠道发送。
// 单个接收人发送失败只标记该行 FAILED，不中断其余投递。
func (s *Service) Deliver(ctx context.Context, payload tasks.DeliverNotificationPayload) error {
	recipients, err := s.resolveRecipients(ctx, payload)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.Warn("通知任务没有解析到任何接收人",
			zap.String("type", payload.Type),
			zap.String("reference_id", payload.ReferenceID),
		)
		return nil
	}

	for _, userID := range recipients {
		n := &Notification{
			UserID:        userID,
			Type:          payload.Type,
			Channel:       payload.Channel,
			Status:        StatusPending,
			Subject:       payload.Subject,
			Message:       payload.Message,
			ReferenceType: payload.ReferenceType,
			ReferenceID:   payload.ReferenceID,
		}
		if err := s.GetDBWithContext(ctx).Create(n).Error; err != nil {
			return fmt.Errorf("创建通知记录失败: %w", err)
		}

		s.send(ctx, n)
	}
	return nil
}

// resolveRecipients 解析接收人：直接指定的用户 + 角色成员，去重。
// 角色成员查询失败记录告警并跳过该角色。
func (s *Service) resolveRecipients(ctx context.Context, payload tasks.DeliverNotificationPayload) ([]string, error) {
	seen := make(map[string]bool)
	var recipients []string

	for _, userID := range payload.UserIDs {
		if !seen[userID] {
			seen[userID] = true
			recipients = append(recipients, userID)
		}
	}

	for _, roleID := range payload.RoleIDs {
		members, err := s.directory.UsersWithRole(ctx, roleID)
		if err != nil {
			logger.Warn("解析通知角色成员失败，跳过该角色",
				zap.String("role_id", roleID),
				zap.Error(err),
			)
			continue
		}
		for _, userID := range members {
			if !seen[userID] {
				seen[userID] = true
				recipients = append(recipients, userID)
			}
		}
	}
	return recipients, nil
}

// send 按渠道发送单条通知并更新状态
func (s *Service) send(ctx context.Context, n *Notification) {
	var sendErr error

	switch n.Channel {
	case ChannelInApp:
		// 站内信：记录本身即送达
	case ChannelEmail:
		sendErr = s.sendEmail(ctx, n)
	case ChannelSMS, ChannelPush:
		// 渠道边界：只记录日志，不接外部网关
		logger.Info("通知渠道发送（记录模式）",
			zap.String("channel", n.Channel),
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
		)
	default:
		sendErr = fmt.Errorf("未知通知渠道: %s", n.Channel)
	}

	now := time.Now()
	if sendErr != nil {
		updates := map[string]any{
			"status":        StatusFailed,
			"error_message": sendErr.Error(),
			"retry_count":   gorm.Expr("retry_count + 1"),
		}
		if err := s.GetDBWithContext(ctx).Model(n).Updates(updates).Error; err != nil {
			logger.Error("更新通知状态失败", zap.String("notification_id", n.ID), zap.Error(err))
		}
		metrics.NotificationsTotal.WithLabelValues(n.Channel, n.Type, "failed").Inc()
		logger.Warn("通知发送失败",
			zap.String("notification_id", n.ID),
			zap.String("channel", n.Channel),
			zap.Error(sendErr),
		)
		return
	}

	updates := map[string]any{
		"status":  StatusSent,
		"sent_at": now,
	}
	if err := s.GetDBWithContext(ctx).Model(n).Updates(updates).Error; err != nil {
		logger.Error("更新通知状态失败", zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues(n.Channel, n.Type, "sent").Inc()
}

// sendEmail 通过 SMTP 发送邮件通知
func (s *Service) sendEmail(ctx context.Context, n *Notification) error {
	if s.email == nil || !s.email.Enabled() {
		// 邮件渠道未配置时退化为站内记录
		logger.Debug("邮件渠道未启用，通知仅落库",
			zap.String("notification_id", n.ID),
		)
		return nil
	}

	user, err := s.directory.GetUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("查询接收人失败: %w", err)
	}
	return s.email.Send(user.Email, n.Subject, n.Message)
}

// ListForUser 分页查询用户通知
func (s *Service) ListForUser(ctx context.Context, userID string, unreadOnly bool, req common.PaginationRequest) ([]Notification, int64, error) {
	base := s.GetDBWithContext(ctx).Model(&Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		base = base.Where("is_read = ?", false)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计通知失败: %w", err)
	}

	var notifications []Notification
	query := s.GetDBWithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if err := s.ApplyPaginationRequest(query, req).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("查询通知列表失败: %w", err)
	}
	return notifications, total, nil
}

// UnreadCount 统计用户未读通知数量
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.Count(ctx, &Notification{}, "user_id = ? AND is_read = ?", userID, false)
}

// MarkAsRead 标记通知已读（仅限本人，重复标记为幂等操作）
func (s *Service) MarkAsRead(ctx context.Context, id, userID string) error {
	var n Notification
	err := s.GetDBWithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NewBusinessErrorWithCode(common.CodeNotificationNotFound)
		}
		return fmt.Errorf("查询通知失败: %w", err)
	}

	if n.UserID != userID {
		return common.NewBusinessError(common.CodeForbidden, "只能标记本人的通知")
	}
	if n.IsRead {
		return nil
	}

	updates := map[string]any{
		"is_read": true,
		"read_at": time.Now(),
	}
	if err := s.GetDBWithContext(ctx).Model(&n).Updates(updates).Error; err != nil {
		return fmt.Errorf("标记通知已读失败: %w", err)
	}
	return nil
}
