package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NotificationDeliverer 通知投递抽象，便于注入 mock
type NotificationDeliverer interface {
	Deliver(ctx context.Context, payload tasks.DeliverNotificationPayload) error
}

type NotificationHandler struct {
	deliverer NotificationDeliverer
	logger    *zap.Logger
}

func NewNotificationHandler(deliverer NotificationDeliverer, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		deliverer: deliverer,
		logger:    logger,
	}
}

func (h *NotificationHandler) HandleDeliverNotification(ctx context.Context, t *asynq.Task) error {
	var p tasks.DeliverNotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始投递通知任务",
		zap.String("type", p.Type),
		zap.String("reference_id", p.ReferenceID),
		zap.Int("direct_users", len(p.UserIDs)),
		zap.Int("roles", len(p.RoleIDs)),
	)

	if err := h.deliverer.Deliver(ctx, p); err != nil {
		h.logger.Error("通知投递失败",
			zap.String("type", p.Type),
			zap.String("reference_id", p.ReferenceID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("通知投递完成",
		zap.String("type", p.Type),
		zap.String("reference_id", p.ReferenceID),
	)
	return nil
}
